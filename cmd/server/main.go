package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"ragserver/internal/config"
	"ragserver/internal/database"
	"ragserver/internal/handlers"
	"ragserver/internal/routes"
	"ragserver/internal/services"
	"ragserver/internal/store"
)

func main() {
	// JSON structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting RAG System Backend", "version", handlers.Version)

	// ─── Config ──────────────────────────────────────────────────────────
	cfg := config.Load()

	// ─── Database ────────────────────────────────────────────────────────
	if err := database.Connect(cfg); err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	db := database.DB

	// ─── Services ────────────────────────────────────────────────────────
	ragClient := services.NewRAGClient(cfg.RAGServerURL, cfg.RAGAPIKey, cfg.PublicBaseURL)

	// Best-effort connectivity probe; the backend still starts when the
	// RAG server is down
	if _, err := ragClient.HealthCheck(); err != nil {
		slog.Warn("RAG server not available at startup", "url", cfg.RAGServerURL, "error", err)
	} else {
		slog.Info("RAG server connection verified", "url", cfg.RAGServerURL)
	}

	st := store.New(db)

	queryParams := services.QueryParams{
		Mode:             cfg.QueryMode,
		ResponseType:     cfg.QueryResponseType,
		TopK:             cfg.QueryTopK,
		MaxTokenTextUnit: cfg.QueryMaxTokenTextUnit,
		MaxTokenGlobal:   cfg.QueryMaxTokenGlobal,
		MaxTokenLocal:    cfg.QueryMaxTokenLocal,
	}
	chatService := services.NewChatService(st, ragClient, queryParams, cfg.HistoryWindow)
	documentService := services.NewDocumentService(ragClient, cfg.DocumentsDir, cfg.MaxFileSize)

	// ─── Handlers ───────────────────────────────────────────────────────
	chatHandler := handlers.NewChatHandler(chatService)
	conversationHandler := handlers.NewConversationHandler(st)
	documentHandler := handlers.NewDocumentHandler(documentService, ragClient)
	systemHandler := handlers.NewSystemHandler(db, ragClient, cfg.AppName)

	// ─── Fiber App ──────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName + " v" + handlers.Version,
		ServerHeader: "ragserver",
		BodyLimit:    int(cfg.MaxFileSize) + 1024*1024, // uploads plus multipart overhead
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": message,
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: false,
	}))

	// Request logger
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if c.Path() == "/api/health" {
			return err
		}
		slog.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)
		return err
	})

	// ─── Routes ─────────────────────────────────────────────────────────
	routes.Setup(app, cfg, chatHandler, conversationHandler, documentHandler, systemHandler)

	// ─── Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down RAG System Backend...")

		if err := app.Shutdown(); err != nil {
			slog.Error("Fiber shutdown error", "error", err)
		}

		if sqlDB, err := database.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	// ─── Start ──────────────────────────────────────────────────────────
	listenAddr := ":" + cfg.Port
	slog.Info("RAG System Backend listening", "addr", listenAddr)

	if err := app.Listen(listenAddr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

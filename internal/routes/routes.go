package routes

import (
	"github.com/gofiber/fiber/v2"

	"ragserver/internal/config"
	"ragserver/internal/handlers"
	"ragserver/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	chatHandler *handlers.ChatHandler,
	conversationHandler *handlers.ConversationHandler,
	documentHandler *handlers.DocumentHandler,
	systemHandler *handlers.SystemHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/", systemHandler.Root)
	app.Get("/api/health", systemHandler.Health)
	app.Get("/api/version", systemHandler.GetVersion)

	// ─── API (optional caller identity) ──────────────────────────────────
	api := app.Group("/api", middleware.CallerIdentity(cfg.JWTSecret))

	// Chat
	api.Post("/chat", chatHandler.Chat)

	// Conversations
	api.Post("/conversations", conversationHandler.Create)
	api.Get("/conversations", conversationHandler.List)
	api.Get("/conversations/:id", conversationHandler.Get)
	api.Get("/conversations/:id/messages", conversationHandler.Messages)
	api.Patch("/conversations/:id/title", conversationHandler.UpdateTitle)
	api.Delete("/conversations/:id", conversationHandler.Delete)

	// Documents — the :filename passthrough goes last so the fixed paths
	// keep matching first
	docs := api.Group("/documents")
	docs.Post("/upload", documentHandler.Upload)
	docs.Post("/text", documentHandler.InsertText)
	docs.Post("/scan", documentHandler.Scan)
	docs.Get("/list", documentHandler.List)
	docs.Get("/pipeline/status", documentHandler.PipelineStatus)
	docs.Get("/:filename", documentHandler.Serve)
}

package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ragserver/internal/services"
)

var startTime = time.Now()

var Version = "1.0.0"

type SystemHandler struct {
	db      *gorm.DB
	rag     *services.RAGClient
	appName string
}

func NewSystemHandler(db *gorm.DB, rag *services.RAGClient, appName string) *SystemHandler {
	return &SystemHandler{db: db, rag: rag, appName: appName}
}

// Health aggregates database connectivity and the RAG server's health probe.
// The overall status degrades when either dependency is unreachable.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	dbStatus := "healthy"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		slog.Error("Database health check failed", "error", err)
		dbStatus = "unhealthy"
	}

	ragStatus := "healthy"
	if _, err := h.rag.HealthCheck(); err != nil {
		slog.Warn("RAG health check failed", "error", err)
		ragStatus = "unhealthy"
	}

	overall := "healthy"
	if dbStatus != "healthy" || ragStatus != "healthy" {
		overall = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
		"services": fiber.Map{
			"database": dbStatus,
			"rag":      ragStatus,
		},
	})
}

func (h *SystemHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":      h.appName,
		"version":   Version,
		"status":    "running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	})
}

func (h *SystemHandler) GetVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    h.appName,
		"version": Version,
	})
}

package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ragserver/internal/services"
)

type ChatHandler struct {
	svc *services.ChatService
}

func NewChatHandler(svc *services.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Chat runs one user↔AI exchange. A missing conversation_id starts a new
// conversation tagged with the caller identity when one is present.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req struct {
		ConversationID *uuid.UUID `json:"conversation_id"`
		Message        string     `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	result, err := h.svc.Chat(req.ConversationID, req.Message, callerID(c))
	if err != nil {
		return serviceError(c, err, "chat turn failed")
	}

	return c.JSON(result)
}

// callerID returns the optional caller identity set by the middleware.
func callerID(c *fiber.Ctx) *string {
	if id, ok := c.Locals("user_id").(string); ok && id != "" {
		return &id
	}
	return nil
}

// serviceError maps service error kinds to transport status codes. Anything
// unclassified degrades to a generic 500 without leaking internals.
func serviceError(c *fiber.Ctx, err error, logMsg string) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   true,
			"message": "RAG service is currently unavailable. Please try again later.",
		})
	default:
		slog.Error(logMsg, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Internal server error",
		})
	}
}

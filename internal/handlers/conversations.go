package handlers

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ragserver/internal/store"
)

type ConversationHandler struct {
	store *store.Store
}

func NewConversationHandler(st *store.Store) *ConversationHandler {
	return &ConversationHandler{store: st}
}

func (h *ConversationHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Title  *string `json:"title"`
		UserID *string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	userID := req.UserID
	if userID == nil {
		userID = callerID(c)
	}

	conv, err := h.store.CreateConversation(req.Title, userID)
	if err != nil {
		slog.Error("Failed to create conversation", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create conversation",
		})
	}

	return c.JSON(fiber.Map{
		"id":            conv.ID,
		"title":         conv.Title,
		"created_at":    conv.CreatedAt,
		"user_id":       conv.UserID,
		"message_count": 0,
	})
}

func (h *ConversationHandler) List(c *fiber.Ctx) error {
	skip, _ := strconv.Atoi(c.Query("skip", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	if skip < 0 {
		skip = 0
	}
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	var userID *string
	if v := c.Query("user_id"); v != "" {
		userID = &v
	}

	summaries, err := h.store.ListSummaries(userID, skip, limit)
	if err != nil {
		slog.Error("Failed to list conversations", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to retrieve conversations",
		})
	}

	return c.JSON(summaries)
}

func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid conversation ID",
		})
	}

	conv, err := h.store.GetConversation(id)
	if err != nil {
		return storeError(c, err, "Failed to retrieve conversation")
	}

	count, err := h.store.MessageCount(id)
	if err != nil {
		return storeError(c, err, "Failed to count messages")
	}

	return c.JSON(fiber.Map{
		"id":            conv.ID,
		"title":         conv.Title,
		"created_at":    conv.CreatedAt,
		"user_id":       conv.UserID,
		"message_count": count,
	})
}

func (h *ConversationHandler) Messages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid conversation ID",
		})
	}

	skip, _ := strconv.Atoi(c.Query("skip", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", "1000"))
	if skip < 0 {
		skip = 0
	}
	if limit < 1 || limit > 10000 {
		limit = 1000
	}

	exists, err := h.store.ConversationExists(id)
	if err != nil {
		return storeError(c, err, "Failed to retrieve messages")
	}
	if !exists {
		return storeError(c, store.ErrNotFound, "")
	}

	messages, err := h.store.ListMessages(id, skip, limit)
	if err != nil {
		return storeError(c, err, "Failed to retrieve messages")
	}

	return c.JSON(messages)
}

func (h *ConversationHandler) UpdateTitle(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid conversation ID",
		})
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > 255 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Title must be between 1 and 255 characters",
		})
	}

	conv, err := h.store.UpdateConversationTitle(id, title)
	if err != nil {
		return storeError(c, err, "Failed to update conversation title")
	}

	count, _ := h.store.MessageCount(id)

	return c.JSON(fiber.Map{
		"id":            conv.ID,
		"title":         conv.Title,
		"created_at":    conv.CreatedAt,
		"user_id":       conv.UserID,
		"message_count": count,
	})
}

func (h *ConversationHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid conversation ID",
		})
	}

	if err := h.store.DeleteConversation(id); err != nil {
		return storeError(c, err, "Failed to delete conversation")
	}

	slog.Info("Deleted conversation", "conversation_id", id)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Conversation " + id.String() + " deleted successfully",
	})
}

func storeError(c *fiber.Ctx, err error, logMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Conversation not found",
		})
	}
	slog.Error(logMsg, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   true,
		"message": "Internal server error",
	})
}

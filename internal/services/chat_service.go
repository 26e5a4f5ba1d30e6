package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"ragserver/internal/models"
	"ragserver/internal/store"
)

// DefaultHistoryWindow is the number of prior turns forwarded to the RAG
// server as context.
const DefaultHistoryWindow = 10

// ragQuerier is the slice of the RAG client the chat flow needs.
type ragQuerier interface {
	Query(query string, history []HistoryEntry, params QueryParams) (string, error)
}

// ChatService orchestrates one user↔AI exchange: conversation resolution,
// message persistence, history assembly, the remote query, response
// persistence, and best-effort title generation.
type ChatService struct {
	store         *store.Store
	rag           ragQuerier
	params        QueryParams
	historyWindow int
}

func NewChatService(st *store.Store, rag ragQuerier, params QueryParams, historyWindow int) *ChatService {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &ChatService{
		store:         st,
		rag:           rag,
		params:        params,
		historyWindow: historyWindow,
	}
}

// ChatResult is the outcome of a completed chat turn.
type ChatResult struct {
	ConversationID uuid.UUID      `json:"conversation_id"`
	AIMessage      string         `json:"ai_message"`
	Sources        datatypes.JSON `json:"sources,omitempty"`
	UserMessageID  uuid.UUID      `json:"user_message_id"`
	AIMessageID    uuid.UUID      `json:"ai_message_id"`
}

// Chat runs a full chat turn. conversationID may be nil, in which case a new
// conversation is created tagged with the optional caller identity.
//
// The user message stays persisted even when the RAG call fails, so a retry
// over the same conversation sees prior context correctly.
func (s *ChatService) Chat(conversationID *uuid.UUID, message string, userID *string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message must not be empty: %w", ErrInvalidInput)
	}

	// Resolve or create the conversation
	var conv *models.Conversation
	var err error
	if conversationID == nil {
		conv, err = s.store.CreateConversation(nil, userID)
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		slog.Info("Created new conversation", "conversation_id", conv.ID)
	} else {
		conv, err = s.store.GetConversation(*conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("conversation %s: %w", *conversationID, ErrNotFound)
			}
			return nil, fmt.Errorf("lookup conversation: %w", err)
		}
	}

	// Persist the user turn before anything can fail downstream
	userMsg, err := s.store.CreateMessage(conv.ID, models.SenderUser, message, nil)
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := s.assembleHistory(conv.ID)
	if err != nil {
		return nil, fmt.Errorf("assemble history: %w", err)
	}

	aiText, err := s.rag.Query(message, history, s.params)
	if err != nil {
		slog.Error("RAG query failed", "conversation_id", conv.ID, "error", err)
		return nil, fmt.Errorf("rag query: %w", ErrUnavailable)
	}

	// Source extraction from RAG responses is not implemented upstream;
	// sources stay empty until a real extraction contract exists.
	var sources datatypes.JSON

	aiMsg, err := s.store.CreateMessage(conv.ID, models.SenderAI, aiText, sources)
	if err != nil {
		return nil, fmt.Errorf("persist ai message: %w", err)
	}

	// Best-effort: a title failure never fails the turn
	if conv.Title == nil {
		s.autoTitle(conv.ID)
	}

	return &ChatResult{
		ConversationID: conv.ID,
		AIMessage:      aiText,
		Sources:        sources,
		UserMessageID:  userMsg.ID,
		AIMessageID:    aiMsg.ID,
	}, nil
}

// assembleHistory returns up to historyWindow role-tagged prior turns in
// chronological order. The just-persisted user message is part of the stored
// tail, so the store is asked for one extra entry and the newest is dropped;
// the current query travels separately.
func (s *ChatService) assembleHistory(conversationID uuid.UUID) ([]HistoryEntry, error) {
	messages, err := s.store.RecentMessages(conversationID, s.historyWindow+1)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		messages = messages[:len(messages)-1]
	}

	history := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Sender == models.SenderAI {
			role = "assistant"
		}
		history = append(history, HistoryEntry{Role: role, Content: m.Content})
	}
	return history, nil
}

func (s *ChatService) autoTitle(conversationID uuid.UUID) {
	title, ok, err := s.store.DeriveTitle(conversationID)
	if err != nil || !ok {
		if err != nil {
			slog.Warn("Title generation failed", "conversation_id", conversationID, "error", err)
		}
		return
	}
	if _, err := s.store.UpdateConversationTitle(conversationID, title); err != nil {
		slog.Warn("Title update failed", "conversation_id", conversationID, "error", err)
		return
	}
	slog.Info("Generated conversation title", "conversation_id", conversationID, "title", title)
}

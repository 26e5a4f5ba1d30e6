// Package store provides the persistence layer for conversations and
// messages on top of GORM.
package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ragserver/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

const titleMaxLen = 50

type Store struct {
	db *gorm.DB

	// Message timestamps are the sole ordering key for history
	// reconstruction, so they must never collide. Inserts go through a
	// small critical section that bumps the clock by one microsecond
	// (the resolution of timestamptz) when two inserts land in the same
	// tick.
	mu        sync.Mutex
	lastStamp time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// nextTimestamp returns a strictly increasing UTC timestamp.
func (s *Store) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = now
	return now
}

// ─── Conversations ──────────────────────────────────────────────────────────

func (s *Store) CreateConversation(title, userID *string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:        uuid.New(),
		Title:     title,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Store) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (s *Store) ConversationExists(id uuid.UUID) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Conversation{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ConversationSummary is the list-view projection of a conversation.
type ConversationSummary struct {
	ID            uuid.UUID  `json:"id"`
	Title         *string    `json:"title"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
	MessageCount  int64      `json:"message_count"`
}

// ListSummaries returns conversations newest-first with message count and
// last-message time, optionally filtered by user id.
func (s *Store) ListSummaries(userID *string, skip, limit int) ([]ConversationSummary, error) {
	q := s.db.Model(&models.Conversation{}).
		Select("conversations.id, conversations.title, conversations.created_at, " +
			"count(messages.id) as message_count, max(messages.timestamp) as last_message_at").
		Joins("LEFT JOIN messages ON messages.conversation_id = conversations.id").
		Group("conversations.id")

	if userID != nil && *userID != "" {
		q = q.Where("conversations.user_id = ?", *userID)
	}

	var summaries []ConversationSummary
	err := q.Order("conversations.created_at DESC").
		Offset(skip).Limit(limit).
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) UpdateConversationTitle(id uuid.UUID, title string) (*models.Conversation, error) {
	conv, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}
	conv.Title = &title
	if err := s.db.Model(conv).Update("title", title).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation removes a conversation and all of its messages. The
// messages FK also cascades at the database level; deleting them here keeps
// the behavior identical on engines where the constraint is not enforced.
func (s *Store) DeleteConversation(id uuid.UUID) error {
	exists, err := s.ConversationExists(id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	if err := s.db.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	return s.db.Delete(&models.Conversation{}, "id = ?", id).Error
}

// ─── Messages ───────────────────────────────────────────────────────────────

func (s *Store) CreateMessage(conversationID uuid.UUID, sender, content string, sources datatypes.JSON) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Sources:        sources,
		Timestamp:      s.nextTimestamp(),
	}
	if err := s.db.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Store) GetMessage(id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages in ascending timestamp
// order with offset pagination.
func (s *Store) ListMessages(conversationID uuid.UUID, skip, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Offset(skip).Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// RecentMessages returns at most limit of the newest messages in the
// conversation, reordered oldest-to-newest. Fetching the bounded window by
// descending timestamp first avoids scanning the whole conversation.
func (s *Store) RecentMessages(conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) MessageCount(conversationID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}

// DeleteMessage removes a single message. Not exposed through the HTTP
// surface; kept for completeness and tests.
func (s *Store) DeleteMessage(id uuid.UUID) error {
	res := s.db.Delete(&models.Message{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeriveTitle builds a conversation title from the chronologically first
// user message: its first 50 characters, with an ellipsis marker when the
// content is longer. Returns false when the conversation has no user
// message yet.
func (s *Store) DeriveTitle(conversationID uuid.UUID) (string, bool, error) {
	var first models.Message
	err := s.db.Where("conversation_id = ? AND sender = ?", conversationID, models.SenderUser).
		Order("timestamp ASC").
		First(&first).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	title := strings.TrimSpace(first.Content)
	if runes := []rune(first.Content); len(runes) > titleMaxLen {
		title = strings.TrimSpace(string(runes[:titleMaxLen])) + "..."
	}
	return title, true, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Message sender values
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     *string   `gorm:"size:255" json:"title"`
	UserID    *string   `gorm:"size:255;index" json:"user_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	Messages  []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Sender         string    `gorm:"size:10;not null" json:"sender"` // user or ai
	Content        string    `gorm:"type:text;not null" json:"content"`
	// Sources is a JSON array of source documents for AI responses,
	// e.g. [{"document_name": "...", "page_number": ..., "url": "..."}].
	// Currently always empty; source extraction is not implemented upstream.
	Sources   datatypes.JSON `gorm:"type:jsonb" json:"sources,omitempty"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`

	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"-"`
}

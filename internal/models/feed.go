package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReplyRef is a denormalized quote of the message being answered
type ReplyRef struct {
	SourceMessageID string `json:"sourceMessageId"`
	AuthorName      string `json:"authorName"`
	Excerpt         string `json:"excerpt"`
}

// FeedMessage is a persisted conversation message
type FeedMessage struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	AuthorID     string    `gorm:"type:varchar(36);not null;index"`
	AuthorName   string    `gorm:"not null"`
	AuthorAvatar *string
	Body         string    `gorm:"type:text"`
	MediaRefs    []string  `gorm:"type:jsonb;serializer:json"`
	ReplyRef     *ReplyRef `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time `gorm:"not null;index"`
}

// BeforeCreate assigns an id when none was given
func (m *FeedMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// TableName overrides the table name
func (FeedMessage) TableName() string {
	return "feed_messages"
}

// ChatBan blocks a user from posting. A ban with a past ExpiresAt is stale
// and gets deactivated the next time it is looked at.
type ChatBan struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	UserID    string     `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Reason    string     `json:"reason"`
	BannedBy  string     `json:"banned_by"`
	ExpiresAt *time.Time `json:"expires_at"`
	IsActive  bool       `json:"is_active" gorm:"not null;index"`
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the ban ran out before now
func (b *ChatBan) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// BlacklistWord is a term that may not appear in feed messages
type BlacklistWord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Word      string    `json:"word" gorm:"uniqueIndex;not null"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

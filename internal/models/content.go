package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Counters is embedded by every entity users can vote on
type Counters struct {
	Likes    int64 `json:"likes" gorm:"not null;default:0"`
	Dislikes int64 `json:"dislikes" gorm:"not null;default:0"`
}

// Topic is a forum thread
type Topic struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AuthorID  string    `json:"author_id" gorm:"index"`
	Title     string    `json:"title" gorm:"not null"`
	Content   string    `json:"content"`
	Counters  `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Post is a reply inside a topic
type Post struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TopicID   string    `json:"topic_id" gorm:"index"`
	AuthorID  string    `json:"author_id" gorm:"index"`
	Content   string    `json:"content"`
	Counters  `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Article is an editorial piece
type Article struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AuthorID  string    `json:"author_id" gorm:"index"`
	Title     string    `json:"title" gorm:"not null"`
	Content   string    `json:"content"`
	Counters  `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Training is a published workout program
type Training struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AuthorID  string    `json:"author_id" gorm:"index"`
	Title     string    `json:"title" gorm:"not null"`
	Content   string    `json:"content"`
	Counters  `gorm:"embedded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment hangs off an article or training
type Comment struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ParentType string    `json:"parent_type" gorm:"index:idx_comment_parent"`
	ParentID   string    `json:"parent_id" gorm:"index:idx_comment_parent"`
	AuthorID   string    `json:"author_id" gorm:"index"`
	Content    string    `json:"content"`
	Counters   `gorm:"embedded"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// BeforeCreate assigns an id when none was given
func (t *Topic) BeforeCreate(*gorm.DB) error { newID(&t.ID); return nil }

// BeforeCreate assigns an id when none was given
func (p *Post) BeforeCreate(*gorm.DB) error { newID(&p.ID); return nil }

// BeforeCreate assigns an id when none was given
func (a *Article) BeforeCreate(*gorm.DB) error { newID(&a.ID); return nil }

// BeforeCreate assigns an id when none was given
func (t *Training) BeforeCreate(*gorm.DB) error { newID(&t.ID); return nil }

// BeforeCreate assigns an id when none was given
func (c *Comment) BeforeCreate(*gorm.DB) error { newID(&c.ID); return nil }

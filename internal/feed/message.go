package feed

import (
	"strings"
	"time"
)

// TempIDPrefix marks ids assigned locally before the server confirms a send
const TempIDPrefix = "temp-"

// ReplyRef is a denormalized quote of the message being answered
type ReplyRef struct {
	SourceMessageID string `json:"sourceMessageId"`
	AuthorName      string `json:"authorName"`
	Excerpt         string `json:"excerpt"`
}

// Message is one entry of the conversation feed
type Message struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName"`
	AuthorAvatar *string   `json:"authorAvatar,omitempty"`
	Body         string    `json:"body"`
	MediaRefs    []string  `json:"mediaRefs,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ReplyRef     *ReplyRef `json:"replyRef,omitempty"`
}

// Pending reports whether m is a local echo still waiting for confirmation
func (m Message) Pending() bool {
	return IsTempID(m.ID)
}

// IsTempID reports whether id was assigned locally
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Draft is what the user is composing
type Draft struct {
	Body      string    `json:"body"`
	MediaRefs []string  `json:"mediaRefs,omitempty"`
	ReplyRef  *ReplyRef `json:"replyRef,omitempty"`
}

// Empty reports whether there is nothing to send
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Body) == "" && len(d.MediaRefs) == 0
}

// EventType distinguishes live feed events
type EventType string

// Event types
const (
	EventInsert EventType = "insert"
	EventDelete EventType = "delete"
)

// Event is pushed to every subscriber when the feed changes
type Event struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message,omitempty"`
	ID      string    `json:"id,omitempty"`
}

// InsertEvent announces a newly persisted message
func InsertEvent(m Message) Event {
	return Event{Type: EventInsert, Message: &m}
}

// DeleteEvent announces a removed message
func DeleteEvent(id string) Event {
	return Event{Type: EventDelete, ID: id}
}

// Page is one batch of history, newest first
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

package feed

import (
	"errors"
	"sync"
)

// Composer errors
var (
	ErrEmptyDraft   = errors.New("feed: nothing to send")
	ErrSendInFlight = errors.New("feed: a send is already in progress")
	ErrTooManyMedia = errors.New("feed: too many attachments")
)

// MaxMediaRefs bounds the attachments of one message
const MaxMediaRefs = 3

// Composer holds what the user is writing. It is safe for concurrent use.
type Composer struct {
	mu      sync.Mutex
	body    string
	media   []string
	reply   *ReplyRef
	sending bool
}

// SetText replaces the body text
func (c *Composer) SetText(body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = body
}

// Text returns the body text
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body
}

// AttachMedia adds a media reference
func (c *Composer) AttachMedia(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.media) >= MaxMediaRefs {
		return ErrTooManyMedia
	}
	c.media = append(c.media, ref)
	return nil
}

// Media returns the attached media references
func (c *Composer) Media() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.media...)
}

// ReplyTo quotes m in the next message. The excerpt is cut to 140 runes.
func (c *Composer) ReplyTo(m Message) {
	excerpt := []rune(m.Body)
	if len(excerpt) > 140 {
		excerpt = excerpt[:140]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = &ReplyRef{
		SourceMessageID: m.ID,
		AuthorName:      m.AuthorName,
		Excerpt:         string(excerpt),
	}
}

// Reply returns the pending quote, if any
func (c *Composer) Reply() *ReplyRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply
}

// Draft returns the current content
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft()
}

func (c *Composer) draft() Draft {
	d := Draft{Body: c.body, ReplyRef: c.reply}
	if len(c.media) > 0 {
		d.MediaRefs = append([]string(nil), c.media...)
	}
	return d
}

// Sending reports whether a send is in progress
func (c *Composer) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// begin snapshots the draft, clears the text and marks the composer busy
func (c *Composer) begin() (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sending {
		return Draft{}, ErrSendInFlight
	}
	d := c.draft()
	if d.Empty() {
		return Draft{}, ErrEmptyDraft
	}
	c.sending = true
	c.body = ""
	return d, nil
}

func (c *Composer) succeed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	c.media = nil
	c.reply = nil
}

// fail ends the send; attachments and the reply stay for a retry
func (c *Composer) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ironflex/backend/internal/models"
	"ironflex/backend/internal/repository"

	"github.com/google/uuid"
)

// MessageStore keeps feed messages in memory
type MessageStore struct {
	mu       sync.Mutex
	messages []models.FeedMessage
	err      error
}

// NewMessageStore returns an empty store
func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Fail makes every later call return err; nil restores it
func (s *MessageStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// List returns up to limit messages older than before, newest first
func (s *MessageStore) List(_ context.Context, before *time.Time, limit int) ([]models.FeedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	out := make([]models.FeedMessage, 0, limit)
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Create stores m, keeping the slice ordered by CreatedAt
func (s *MessageStore) Create(_ context.Context, m *models.FeedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(m.CreatedAt)
	})
	s.messages = append(s.messages, models.FeedMessage{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = *m
	return nil
}

// Delete removes a message, reporting whether it existed
func (s *MessageStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}

	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// RecentAuthors returns the author ids of the latest n messages, newest first
func (s *MessageStore) RecentAuthors(_ context.Context, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	var out []string
	for i := len(s.messages) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.messages[i].AuthorID)
	}
	return out, nil
}

// Len returns the number of stored messages
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// ModerationStore keeps bans and blacklist words in memory
type ModerationStore struct {
	mu          sync.Mutex
	bans        []models.ChatBan
	words       []models.BlacklistWord
	wordLookups int
	nextBanID   uint
	nextWordID  uint
}

// NewModerationStore returns an empty store
func NewModerationStore() *ModerationStore {
	return &ModerationStore{}
}

// AddBan stores a ban and returns its id
func (s *ModerationStore) AddBan(b models.ChatBan) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBanID++
	b.ID = s.nextBanID
	b.IsActive = true
	s.bans = append(s.bans, b)
	return b.ID
}

// SetWords replaces the blacklist
func (s *ModerationStore) SetWords(words ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words = nil
	for _, w := range words {
		s.nextWordID++
		s.words = append(s.words, models.BlacklistWord{ID: s.nextWordID, Word: w})
	}
}

// Ban returns a copy of the ban with id
func (s *ModerationStore) Ban(id uint) (models.ChatBan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bans {
		if b.ID == id {
			return b, true
		}
	}
	return models.ChatBan{}, false
}

// ActiveBans returns the user's bans still flagged active
func (s *ModerationStore) ActiveBans(_ context.Context, userID string) ([]models.ChatBan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatBan
	for _, b := range s.bans {
		if b.UserID == userID && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

// DeactivateBan clears the active flag on a ban
func (s *ModerationStore) DeactivateBan(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bans {
		if s.bans[i].ID == id {
			s.bans[i].IsActive = false
		}
	}
	return nil
}

// WordLookups counts BlacklistWords calls
func (s *ModerationStore) WordLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wordLookups
}

// BlacklistWords returns the blacklist and counts the lookup
func (s *ModerationStore) BlacklistWords(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wordLookups++
	out := make([]string, 0, len(s.words))
	for _, w := range s.words {
		out = append(out, w.Word)
	}
	return out, nil
}

// ListBans returns bans newest first, only active ones unless all is set
func (s *ModerationStore) ListBans(_ context.Context, all bool) ([]models.ChatBan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ChatBan{}
	for i := len(s.bans) - 1; i >= 0; i-- {
		if all || s.bans[i].IsActive {
			out = append(out, s.bans[i])
		}
	}
	return out, nil
}

// CreateBan replaces the user's active bans with ban
func (s *ModerationStore) CreateBan(_ context.Context, ban *models.ChatBan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bans {
		if s.bans[i].UserID == ban.UserID {
			s.bans[i].IsActive = false
		}
	}
	s.nextBanID++
	ban.ID = s.nextBanID
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = time.Now().UTC()
	}
	s.bans = append(s.bans, *ban)
	return nil
}

// LiftBan deactivates a ban, reporting whether it existed
func (s *ModerationStore) LiftBan(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bans {
		if s.bans[i].ID == id {
			s.bans[i].IsActive = false
			return true, nil
		}
	}
	return false, nil
}

// ListWords returns the blacklist entries newest first
func (s *ModerationStore) ListWords(context.Context) ([]models.BlacklistWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BlacklistWord, 0, len(s.words))
	for i := len(s.words) - 1; i >= 0; i-- {
		out = append(out, s.words[i])
	}
	return out, nil
}

// AddWord stores w, or returns repository.ErrDuplicateWord
func (s *ModerationStore) AddWord(_ context.Context, w *models.BlacklistWord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.words {
		if existing.Word == w.Word {
			return repository.ErrDuplicateWord
		}
	}
	s.nextWordID++
	w.ID = s.nextWordID
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	s.words = append(s.words, *w)
	return nil
}

// RemoveWord deletes a blacklist entry, reporting whether it existed
func (s *ModerationStore) RemoveWord(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.words {
		if w.ID == id {
			s.words = append(s.words[:i], s.words[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ironflex/backend/internal/auth"
	"ironflex/backend/internal/models"
	"ironflex/backend/internal/repository"
	"ironflex/backend/pkg/cache"
	apperrors "ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/logger"
)

// Moderation errors
var (
	ErrBanTargetRequired = apperrors.NewBadRequestError("INVALID_REQUEST", "userId is required")
	ErrCannotBanAdmin    = apperrors.NewBadRequestError("CANNOT_BAN_ADMIN", "Administrators cannot be banned")
	ErrInvalidDuration   = apperrors.NewBadRequestError("INVALID_DURATION", "Duration must be zero or a positive number of hours")
	ErrBanNotFound       = apperrors.NewNotFoundError("NOT_FOUND", "Ban not found")
	ErrInvalidWord       = apperrors.NewBadRequestError("INVALID_WORD", "Word must be 2 to 100 characters")
	ErrWordExists        = apperrors.NewConflictError("WORD_EXISTS", "Word is already blacklisted")
	ErrWordNotFound      = apperrors.NewNotFoundError("NOT_FOUND", "Word not found")
)

const (
	minWordRunes = 2
	maxWordRunes = 100
)

// ModerationAdminStore manages chat bans and the word blacklist
type ModerationAdminStore interface {
	ListBans(ctx context.Context, all bool) ([]models.ChatBan, error)
	CreateBan(ctx context.Context, ban *models.ChatBan) error
	LiftBan(ctx context.Context, id uint) (bool, error)
	ListWords(ctx context.Context) ([]models.BlacklistWord, error)
	AddWord(ctx context.Context, w *models.BlacklistWord) error
	RemoveWord(ctx context.Context, id uint) (bool, error)
}

// UserLookup finds accounts by id
type UserLookup interface {
	ByID(ctx context.Context, id string) (*models.User, error)
}

// BanRequest bans a user from the chat. A zero duration bans until lifted.
type BanRequest struct {
	UserID        string `json:"userId"`
	Reason        string `json:"reason"`
	DurationHours int    `json:"duration"`
}

// ModerationService lets admins manage bans and the blacklist
type ModerationService struct {
	store ModerationAdminStore
	users UserLookup
	cache cache.Cache
	clock cache.Clock
	log   *logger.Logger
}

// NewModerationService creates a moderation service. Word edits drop the
// blacklist cached by the conversation service sharing c.
func NewModerationService(store ModerationAdminStore, users UserLookup, c cache.Cache, log *logger.Logger) *ModerationService {
	return &ModerationService{store: store, users: users, cache: c, clock: cache.SystemClock{}, log: log}
}

func requireAdmin(user *auth.User) error {
	if user == nil {
		return apperrors.Unauthenticated
	}
	if !user.IsAdmin {
		return apperrors.AdminOnly
	}
	return nil
}

// ListBans returns active bans, or every ban when all is set
func (s *ModerationService) ListBans(ctx context.Context, admin *auth.User, all bool) ([]models.ChatBan, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	bans, err := s.store.ListBans(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	return bans, nil
}

// Ban replaces any active ban of the user with a new one
func (s *ModerationService) Ban(ctx context.Context, admin *auth.User, req BanRequest) (*models.ChatBan, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ErrBanTargetRequired
	}
	if req.DurationHours < 0 {
		return nil, ErrInvalidDuration
	}

	target, err := s.users.ByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ban target: %w", err)
	}
	if target.IsAdmin() {
		return nil, ErrCannotBanAdmin
	}

	ban := &models.ChatBan{
		UserID:   userID,
		Reason:   strings.TrimSpace(req.Reason),
		BannedBy: admin.ID,
		IsActive: true,
	}
	if req.DurationHours > 0 {
		expires := s.clock.Now().UTC().Add(time.Duration(req.DurationHours) * time.Hour)
		ban.ExpiresAt = &expires
	}
	if err := s.store.CreateBan(ctx, ban); err != nil {
		return nil, fmt.Errorf("create ban: %w", err)
	}

	s.log.Info("user banned from chat", "user_id", userID, "admin_id", admin.ID, "ban_id", ban.ID)
	return ban, nil
}

// Unban lifts a ban
func (s *ModerationService) Unban(ctx context.Context, admin *auth.User, id uint) error {
	if err := requireAdmin(admin); err != nil {
		return err
	}
	found, err := s.store.LiftBan(ctx, id)
	if err != nil {
		return fmt.Errorf("lift ban: %w", err)
	}
	if !found {
		return ErrBanNotFound
	}
	s.log.Info("chat ban lifted", "ban_id", id, "admin_id", admin.ID)
	return nil
}

// ListWords returns the blacklist
func (s *ModerationService) ListWords(ctx context.Context, admin *auth.User) ([]models.BlacklistWord, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	words, err := s.store.ListWords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	return words, nil
}

// AddWord blacklists a word, stored lower-cased
func (s *ModerationService) AddWord(ctx context.Context, admin *auth.User, word string) (*models.BlacklistWord, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	word = strings.ToLower(strings.TrimSpace(word))
	if n := utf8.RuneCountInString(word); n < minWordRunes || n > maxWordRunes {
		return nil, ErrInvalidWord
	}

	w := &models.BlacklistWord{Word: word, CreatedBy: admin.ID}
	err := s.store.AddWord(ctx, w)
	if errors.Is(err, repository.ErrDuplicateWord) {
		return nil, ErrWordExists
	}
	if err != nil {
		return nil, fmt.Errorf("add blacklist word: %w", err)
	}

	s.dropCachedBlacklist(ctx)
	return w, nil
}

// RemoveWord takes a word off the blacklist
func (s *ModerationService) RemoveWord(ctx context.Context, admin *auth.User, id uint) error {
	if err := requireAdmin(admin); err != nil {
		return err
	}
	found, err := s.store.RemoveWord(ctx, id)
	if err != nil {
		return fmt.Errorf("remove blacklist word: %w", err)
	}
	if !found {
		return ErrWordNotFound
	}

	s.dropCachedBlacklist(ctx)
	return nil
}

func (s *ModerationService) dropCachedBlacklist(ctx context.Context) {
	if err := s.cache.Delete(ctx, blacklistCacheKey); err != nil {
		s.log.LogError(err, "drop cached blacklist")
	}
}

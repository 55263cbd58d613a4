package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ironflex/backend/internal/auth"
	"ironflex/backend/internal/feed"
	"ironflex/backend/internal/models"
	"ironflex/backend/pkg/cache"
	"ironflex/backend/pkg/config"
	apperrors "ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	blacklistCacheKey = "feed:blacklist"
	maxExcerptRunes   = 140
)

// Conversation errors
var (
	ErrEmptyMessage       = apperrors.NewBadRequestError("INVALID_MESSAGE", "Message must contain text or media")
	ErrMessageTooLong     = apperrors.NewBadRequestError("MESSAGE_TOO_LONG", "Message is too long")
	ErrForbiddenWords     = apperrors.NewBadRequestError("FORBIDDEN_WORDS", "Message contains forbidden words")
	ErrChatBanned         = apperrors.NewForbiddenError("CHAT_BANNED", "You are banned from the chat")
	ErrTooManyConsecutive = apperrors.NewTooManyRequestsError("TOO_MANY_CONSECUTIVE", "Wait for someone else to write before posting again")
	ErrMessageNotFound    = apperrors.NewNotFoundError("NOT_FOUND", "Message not found")
)

// MessageStore persists feed messages
type MessageStore interface {
	List(ctx context.Context, before *time.Time, limit int) ([]models.FeedMessage, error)
	Create(ctx context.Context, m *models.FeedMessage) error
	Delete(ctx context.Context, id string) (bool, error)
	RecentAuthors(ctx context.Context, n int) ([]string, error)
}

// ModerationStore reads chat bans and the word blacklist
type ModerationStore interface {
	ActiveBans(ctx context.Context, userID string) ([]models.ChatBan, error)
	DeactivateBan(ctx context.Context, id uint) error
	BlacklistWords(ctx context.Context) ([]string, error)
}

// Publisher fans feed events out to live subscribers
type Publisher interface {
	Publish(ctx context.Context, ev feed.Event) error
}

// ConversationConfig holds the feed limits
type ConversationConfig struct {
	DefaultPageSize        int
	MaxPageSize            int
	MaxMessageLength       int
	MaxMediaRefs           int
	MaxConsecutiveMessages int
	BlacklistTTL           time.Duration
}

// ConversationConfigFrom extracts the feed limits from the app config
func ConversationConfigFrom(cfg *config.Config) ConversationConfig {
	return ConversationConfig{
		DefaultPageSize:        cfg.Feed.DefaultPageSize,
		MaxPageSize:            cfg.Feed.MaxPageSize,
		MaxMessageLength:       cfg.Feed.MaxMessageLength,
		MaxMediaRefs:           cfg.Feed.MaxMediaRefs,
		MaxConsecutiveMessages: cfg.Feed.MaxConsecutiveMessages,
		BlacklistTTL:           cfg.Feed.BlacklistTTL,
	}
}

// SendRequest is a message submitted by a user
type SendRequest struct {
	Body      string        `json:"body"`
	MediaRefs []string      `json:"mediaRefs"`
	ReplyRef  *feed.ReplyRef `json:"replyRef"`
}

// ConversationService handles the shared conversation feed
type ConversationService struct {
	messages   MessageStore
	moderation ModerationStore
	publisher  Publisher
	cache      cache.Cache
	clock      cache.Clock
	cfg        ConversationConfig
	log        *logger.Logger
	rejections *prometheus.CounterVec
}

// NewConversationService creates a conversation service
func NewConversationService(
	messages MessageStore,
	moderation ModerationStore,
	publisher Publisher,
	c cache.Cache,
	cfg ConversationConfig,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		messages:   messages,
		moderation: moderation,
		publisher:  publisher,
		cache:      c,
		clock:      cache.SystemClock{},
		cfg:        cfg,
		log:        log,
	}
}

// WithRejectionMetric counts rejected sends by error code
func (s *ConversationService) WithRejectionMetric(v *prometheus.CounterVec) *ConversationService {
	s.rejections = v
	return s
}

// List returns a page of history older than before, newest first.
// A full page means more history may exist.
func (s *ConversationService) List(ctx context.Context, before *time.Time, limit int) (*feed.Page, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	rows, err := s.messages.List(ctx, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	page := &feed.Page{
		Messages: make([]feed.Message, 0, len(rows)),
		HasMore:  len(rows) == limit,
	}
	for _, row := range rows {
		page.Messages = append(page.Messages, ToFeedMessage(row))
	}
	return page, nil
}

// Send validates and stores a message, then announces it to subscribers
func (s *ConversationService) Send(ctx context.Context, user *auth.User, req SendRequest) (*feed.Message, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated
	}

	msg, err := s.prepare(ctx, user, req)
	if err != nil {
		if s.rejections != nil {
			s.rejections.WithLabelValues(apperrors.GetErrorCode(err)).Inc()
		}
		return nil, err
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	out := ToFeedMessage(*msg)
	// The message is stored; a failed broadcast only delays other clients
	// until their next reload, so the sender still gets a success.
	if err := s.publisher.Publish(ctx, feed.InsertEvent(out)); err != nil {
		s.log.LogError(err, "publish insert event", "message_id", out.ID)
	}

	s.log.Debug("message sent", "message_id", out.ID, "user_id", user.ID)
	return &out, nil
}

func (s *ConversationService) prepare(ctx context.Context, user *auth.User, req SendRequest) (*models.FeedMessage, error) {
	body := strings.TrimSpace(req.Body)

	media := make([]string, 0, len(req.MediaRefs))
	for _, ref := range req.MediaRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			media = append(media, ref)
		}
	}
	if len(media) > s.cfg.MaxMediaRefs {
		media = media[:s.cfg.MaxMediaRefs]
	}

	if body == "" && len(media) == 0 {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > s.cfg.MaxMessageLength {
		return nil, ErrMessageTooLong.WithDetails(map[string]int{"max": s.cfg.MaxMessageLength})
	}

	if err := s.checkBans(ctx, user.ID); err != nil {
		return nil, err
	}
	if err := s.checkBlacklist(ctx, body); err != nil {
		return nil, err
	}
	if err := s.checkConsecutive(ctx, user.ID); err != nil {
		return nil, err
	}

	msg := &models.FeedMessage{
		AuthorID:   user.ID,
		AuthorName: user.DisplayName,
		Body:       body,
		MediaRefs:  media,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if user.AvatarURL != "" {
		avatar := user.AvatarURL
		msg.AuthorAvatar = &avatar
	}
	if req.ReplyRef != nil && req.ReplyRef.SourceMessageID != "" {
		msg.ReplyRef = &models.ReplyRef{
			SourceMessageID: req.ReplyRef.SourceMessageID,
			AuthorName:      req.ReplyRef.AuthorName,
			Excerpt:         truncateRunes(req.ReplyRef.Excerpt, maxExcerptRunes),
		}
	}
	return msg, nil
}

// checkBans rejects users with a live ban. Expired bans are deactivated on the way.
func (s *ConversationService) checkBans(ctx context.Context, userID string) error {
	bans, err := s.moderation.ActiveBans(ctx, userID)
	if err != nil {
		return fmt.Errorf("load bans: %w", err)
	}

	now := s.clock.Now()
	for _, ban := range bans {
		if ban.Expired(now) {
			if err := s.moderation.DeactivateBan(ctx, ban.ID); err != nil {
				return fmt.Errorf("deactivate ban: %w", err)
			}
			continue
		}
		details := map[string]any{"reason": ban.Reason}
		if ban.ExpiresAt != nil {
			details["expiresAt"] = ban.ExpiresAt.UTC().Format(time.RFC3339)
		}
		return ErrChatBanned.WithDetails(details)
	}
	return nil
}

func (s *ConversationService) checkBlacklist(ctx context.Context, body string) error {
	if body == "" {
		return nil
	}

	words, err := s.blacklist(ctx)
	if err != nil {
		return err
	}

	lower := strings.ToLower(body)
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return ErrForbiddenWords
		}
	}
	return nil
}

func (s *ConversationService) blacklist(ctx context.Context) ([]string, error) {
	words, ok, err := cache.GetJSON[[]string](ctx, s.cache, blacklistCacheKey)
	if err != nil {
		s.log.LogError(err, "read blacklist cache")
	}
	if ok {
		return words, nil
	}

	words, err = s.moderation.BlacklistWords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	if err := cache.SetJSON(ctx, s.cache, blacklistCacheKey, words, s.cfg.BlacklistTTL); err != nil {
		s.log.LogError(err, "write blacklist cache")
	}
	return words, nil
}

// InvalidateBlacklist drops the cached word list
func (s *ConversationService) InvalidateBlacklist(ctx context.Context) error {
	return s.cache.Delete(ctx, blacklistCacheKey)
}

// checkConsecutive stops one user from flooding the feed: if the latest
// MaxConsecutiveMessages messages are all theirs, they must wait.
func (s *ConversationService) checkConsecutive(ctx context.Context, userID string) error {
	n := s.cfg.MaxConsecutiveMessages
	if n <= 0 {
		return nil
	}

	authors, err := s.messages.RecentAuthors(ctx, n)
	if err != nil {
		return fmt.Errorf("load recent authors: %w", err)
	}
	if len(authors) < n {
		return nil
	}
	for _, a := range authors {
		if a != userID {
			return nil
		}
	}
	return ErrTooManyConsecutive
}

// Delete removes a message for everyone. Admin only.
func (s *ConversationService) Delete(ctx context.Context, user *auth.User, id string) error {
	if user == nil {
		return apperrors.Unauthenticated
	}
	if !user.IsAdmin {
		return apperrors.AdminOnly
	}

	found, err := s.messages.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if !found {
		return ErrMessageNotFound
	}

	if err := s.publisher.Publish(ctx, feed.DeleteEvent(id)); err != nil {
		s.log.LogError(err, "publish delete event", "message_id", id)
	}

	s.log.Info("message deleted by admin", "message_id", id, "admin_id", user.ID)
	return nil
}

// ToFeedMessage converts a stored message to its wire form
func ToFeedMessage(m models.FeedMessage) feed.Message {
	out := feed.Message{
		ID:           m.ID,
		AuthorID:     m.AuthorID,
		AuthorName:   m.AuthorName,
		AuthorAvatar: m.AuthorAvatar,
		Body:         m.Body,
		MediaRefs:    m.MediaRefs,
		CreatedAt:    m.CreatedAt,
	}
	if m.ReplyRef != nil {
		out.ReplyRef = &feed.ReplyRef{
			SourceMessageID: m.ReplyRef.SourceMessageID,
			AuthorName:      m.ReplyRef.AuthorName,
			Excerpt:         m.ReplyRef.Excerpt,
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

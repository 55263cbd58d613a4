package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ironflex/backend/internal/feed"
	apperrors "ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/logger"
	"ironflex/backend/pkg/resilience"
)

const apiPrefix = "/api/v1"

// StoreOptions configures a Store
type StoreOptions struct {
	// Token is sent as a bearer token when set
	Token      string
	HTTPClient *http.Client
	Breaker    *resilience.CircuitBreaker
	Logger     *logger.Logger
}

// Store talks to the conversation REST API
type Store struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	log     *logger.Logger
}

// NewStore creates a store for the server at baseURL
func NewStore(baseURL string, opts StoreOptions) *Store {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobal()
	}
	if opts.Breaker == nil {
		cfg := resilience.DefaultConfig("feed-api")
		cfg.IsFailure = countsAgainstBreaker
		opts.Breaker = resilience.NewCircuitBreaker(cfg, opts.Logger)
	}
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.Token,
		http:    opts.HTTPClient,
		breaker: opts.Breaker,
		log:     opts.Logger,
	}
}

// countsAgainstBreaker ignores client errors such as 403 or 404
func countsAgainstBreaker(err error) bool {
	return err != nil && (apperrors.IsRetryable(err) || apperrors.GetStatusCode(err) >= 500)
}

// ListMessages fetches a page of history, newest first
func (s *Store) ListMessages(ctx context.Context, before *time.Time, limit int) (feed.Page, error) {
	q := url.Values{}
	if before != nil {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page feed.Page
	err := s.do(ctx, http.MethodGet, "/conversation?"+q.Encode(), nil, &page)
	return page, err
}

// SendMessage posts a draft and returns the stored message
func (s *Store) SendMessage(ctx context.Context, draft feed.Draft) (feed.Message, error) {
	var msg feed.Message
	err := s.do(ctx, http.MethodPost, "/conversation", draft, &msg)
	return msg, err
}

// DeleteMessage removes a message. Requires an admin token.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/admin/conversation/"+url.PathEscape(id), nil, nil)
}

// Me resolves the token's account into the author stamped on optimistic echoes
func (s *Store) Me(ctx context.Context) (feed.Author, error) {
	var me struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
	}
	if err := s.do(ctx, http.MethodGet, "/auth/me", nil, &me); err != nil {
		return feed.Author{}, err
	}

	author := feed.Author{ID: me.ID, Name: me.DisplayName}
	if me.AvatarURL != "" {
		author.Avatar = &me.AvatarURL
	}
	return author, nil
}

func (s *Store) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+apiPrefix+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		resp, err := s.http.Do(req)
		if err != nil {
			return apperrors.NetworkFailure.WithCause(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return decodeError(resp)
		}
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.NetworkFailure.WithCause(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperrors.NetworkFailure.WithCause(err)
	}
	return err
}

// decodeError rebuilds the server's AppError from the response body
func decodeError(resp *http.Response) error {
	var envelope struct {
		Error *apperrors.AppError `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == nil || envelope.Error.Code == "" {
		return apperrors.NewError(resp.StatusCode, "HTTP_"+strconv.Itoa(resp.StatusCode), http.StatusText(resp.StatusCode))
	}
	envelope.Error.StatusCode = resp.StatusCode
	return envelope.Error
}

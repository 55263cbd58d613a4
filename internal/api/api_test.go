package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ironflex/backend/internal/feed"
	"ironflex/backend/internal/models"
	"ironflex/backend/internal/reaction"
	"ironflex/backend/internal/repository/memory"
	"ironflex/backend/internal/service"
	"ironflex/backend/pkg/cache"
	"ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/health"
	"ironflex/backend/pkg/jwt"
	"ironflex/backend/pkg/logger"
	"ironflex/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPublisher struct{ events []feed.Event }

func (p *nopPublisher) Publish(_ context.Context, ev feed.Event) error {
	p.events = append(p.events, ev)
	return nil
}

type testServer struct {
	engine    *gin.Engine
	tokens    *jwt.Service
	votes     *memory.ReactionStore
	messages  *memory.MessageStore
	users     *memory.UserStore
	publisher *nopPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()

	ts := &testServer{
		tokens:    jwt.NewService("test-secret", time.Hour),
		votes:     memory.NewReactionStore(),
		messages:  memory.NewMessageStore(),
		users:     memory.NewUserStore(),
		publisher: &nopPublisher{},
	}
	moderation := memory.NewModerationStore()
	shared := cache.NewMemory(cache.MemoryOptions{})

	conversation := service.NewConversationService(
		ts.messages,
		moderation,
		ts.publisher,
		shared,
		service.ConversationConfig{
			DefaultPageSize:        50,
			MaxPageSize:            100,
			MaxMessageLength:       500,
			MaxMediaRefs:           3,
			MaxConsecutiveMessages: 5,
			BlacklistTTL:           time.Minute,
		},
		log,
	)

	r := gin.New()
	r.Use(logger.Middleware(log), errors.ErrorHandler(), middleware.Authenticate(ts.tokens))
	v1 := r.Group("/api/v1")
	admin := v1.Group("/admin", middleware.RequireAdmin())

	NewReactionHandler(reaction.NewService(ts.votes, log, nil)).RegisterRoutes(v1, admin)
	NewConversationHandler(conversation).RegisterRoutes(v1, admin)
	NewModerationHandler(service.NewModerationService(moderation, ts.users, shared, log)).RegisterRoutes(admin)
	NewAuthHandler(service.NewUserService(ts.users, ts.tokens), log).RegisterRoutes(v1)
	NewHealthHandler(health.NewChecker(log, time.Minute), "test").RegisterHealthRoutes(v1)

	ts.engine = r
	return ts
}

func (ts *testServer) token(t *testing.T, id string, role jwt.Role) string {
	t.Helper()
	tok, err := ts.tokens.GenerateToken(jwt.Subject{UserID: id, Name: "User " + id, Role: role})
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestVoteToggleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.votes.AddTarget(reaction.TargetTopic, "t1", reaction.Counts{Likes: 5, Dislikes: 2})
	tok := ts.token(t, "u1", jwt.RoleUser)

	steps := []struct {
		reaction string
		state    reaction.VoteState
		likes    int64
		dislikes int64
	}{
		{"like", reaction.StateLiked, 6, 2},
		{"dislike", reaction.StateDisliked, 5, 3},
		{"dislike", reaction.StateNone, 5, 2},
	}
	for _, step := range steps {
		w := ts.do(t, http.MethodPost, "/api/v1/topic/t1/vote", tok, VoteRequest{Reaction: step.reaction})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var res reaction.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, step.state, res.State)
		assert.Equal(t, step.likes, res.Likes)
		assert.Equal(t, step.dislikes, res.Dislikes)
	}

	w := ts.do(t, http.MethodGet, "/api/v1/topic/t1/vote", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"targetType":"topic","targetId":"t1","userVote":"none","likes":5,"dislikes":2}`, w.Body.String())
}

func TestVoteErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.votes.AddTarget(reaction.TargetPost, "p1", reaction.Counts{})
	tok := ts.token(t, "u1", jwt.RoleUser)

	w := ts.do(t, http.MethodPost, "/api/v1/post/p1/vote", "", VoteRequest{Reaction: "like"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/post/p1/vote", "not-a-token", VoteRequest{Reaction: "like"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/post/missing/vote", tok, VoteRequest{Reaction: "like"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/post/p1/vote", tok, VoteRequest{Reaction: "love"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REACTION", errorCode(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/post/p1/vote", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
}

func TestRecountIsAdminOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.votes.AddTarget(reaction.TargetArticle, "a1", reaction.Counts{Likes: 40})

	w := ts.do(t, http.MethodPost, "/api/v1/admin/article/a1/recount", ts.token(t, "u1", jwt.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/admin/article/a1/recount", ts.token(t, "root", jwt.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"likes":0,"dislikes":0}`, w.Body.String())
}

func TestConversationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", jwt.RoleUser)

	w := ts.do(t, http.MethodPost, "/api/v1/conversation", "", feed.Draft{Body: "hi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/conversation", alice, feed.Draft{Body: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MESSAGE", errorCode(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/conversation", alice, feed.Draft{Body: "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sent feed.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.Equal(t, "User alice", sent.AuthorName)

	w = ts.do(t, http.MethodGet, "/api/v1/conversation?limit=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page feed.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)

	w = ts.do(t, http.MethodGet, "/api/v1/conversation?before=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CURSOR", errorCode(t, w))

	w = ts.do(t, http.MethodDelete, "/api/v1/admin/conversation/"+sent.ID, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	root := ts.token(t, "root", jwt.RoleAdmin)
	w = ts.do(t, http.MethodDelete, "/api/v1/admin/conversation/"+sent.ID, root, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, ts.messages.Len())

	w = ts.do(t, http.MethodDelete, "/api/v1/admin/conversation/"+sent.ID, root, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Len(t, ts.publisher.events, 2)
	assert.Equal(t, feed.DeleteEvent(sent.ID), ts.publisher.events[1])

	w = ts.do(t, http.MethodPost, "/api/v1/admin/blacklist/refresh", root, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestModerationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.users.Create(context.Background(), &models.User{
		ID: "alice", DisplayName: "Alice", Email: "alice@example.com", Password: "long enough",
	}))
	alice := ts.token(t, "alice", jwt.RoleUser)
	root := ts.token(t, "root", jwt.RoleAdmin)

	w := ts.do(t, http.MethodPost, "/api/v1/admin/chat/bans", alice, map[string]any{"userId": "alice"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/admin/chat/bans", root, map[string]any{"userId": "alice", "reason": "spam", "duration": 24})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Ban models.ChatBan `json:"ban"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.Ban.UserID)
	require.NotNil(t, created.Ban.ExpiresAt)

	w = ts.do(t, http.MethodPost, "/api/v1/conversation", alice, feed.Draft{Body: "hello"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "CHAT_BANNED", errorCode(t, w))

	w = ts.do(t, http.MethodGet, "/api/v1/admin/chat/bans", root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"spam"`)

	w = ts.do(t, http.MethodDelete, "/api/v1/admin/chat/bans/abc", root, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", errorCode(t, w))

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/chat/bans/%d", created.Ban.ID), root, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/chat/bans/%d", created.Ban.ID+1), root, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/admin/chat/blacklist", root, map[string]string{"word": "Scam"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var added struct {
		Word models.BlacklistWord `json:"word"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	assert.Equal(t, "scam", added.Word.Word)

	w = ts.do(t, http.MethodPost, "/api/v1/admin/chat/blacklist", root, map[string]string{"word": "scam"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "WORD_EXISTS", errorCode(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/conversation", alice, feed.Draft{Body: "great scam"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/admin/chat/blacklist", root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"word":"scam"`)

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/chat/blacklist/%d", added.Word.ID), root, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/conversation", alice, feed.Draft{Body: "great scam"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSignupLoginMe(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"display_name": "Alice",
		"email":        "alice@example.com",
		"password":     "long enough",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"display_name": "Alice",
		"email":        "alice@example.com",
		"password":     "long enough",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "USER_EXISTS", errorCode(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "long enough"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = ts.do(t, http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"display_name":"Alice"`)

	w = ts.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

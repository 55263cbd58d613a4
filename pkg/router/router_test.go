package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ironflex/backend/internal/reaction"
	"ironflex/backend/internal/repository/memory"
	"ironflex/backend/internal/service"
	"ironflex/backend/internal/ws"
	"ironflex/backend/pkg/cache"
	"ironflex/backend/pkg/config"
	"ironflex/backend/pkg/di"
	"ironflex/backend/pkg/health"
	"ironflex/backend/pkg/jwt"
	"ironflex/backend/pkg/logger"
	"ironflex/backend/pkg/observability"
	wsproto "ironflex/backend/pkg/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Router, *di.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.Security.RateLimit = 1000
	cfg.Security.RateLimitBurst = 1000
	cfg.Security.AllowedOrigins = []string{"https://app.example"}
	cfg.OpenAPI.SchemaPath = ""

	log := logger.Discard()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hub := ws.NewHub(log, metrics.WSClients)
	tokens := jwt.NewService("router-secret", time.Hour)
	shared := cache.NewMemory(cache.MemoryOptions{})
	moderation := memory.NewModerationStore()
	users := memory.NewUserStore()

	c := &di.Container{
		Config:     cfg,
		Logger:     log,
		Metrics:    metrics,
		Cache:      shared,
		JWTService: tokens,
		Hub:        hub,
		Health:     health.NewChecker(log, time.Minute),
		ReactionService: reaction.NewService(
			memory.NewReactionStore(), log, metrics.Votes),
		ConversationService: service.NewConversationService(
			memory.NewMessageStore(),
			moderation,
			ws.NewHubPublisher(hub, metrics.FeedEvents),
			shared,
			service.ConversationConfigFrom(cfg),
			log,
		),
		ModerationService: service.NewModerationService(moderation, users, shared, log),
		UserService:       service.NewUserService(users, tokens),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := New(c, reg)
	r.SetupRoutes()
	return r, c
}

func TestHealthAndMetricsMounted(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "forum_ws_clients")
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/conversation", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/conversation", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	r, c := newTestRouter(t)

	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/admin/blacklist/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userTok, err := c.JWTService.GenerateToken(jwt.Subject{UserID: "u1", Name: "u1", Role: jwt.RoleUser})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/blacklist/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+userTok)
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminTok, err := c.JWTService.GenerateToken(jwt.Subject{UserID: "a1", Name: "a1", Role: jwt.RoleAdmin})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/blacklist/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWebsocketReceivesPostedMessage(t *testing.T) {
	r, c := newTestRouter(t)
	srv := httptest.NewServer(r.Engine)
	defer srv.Close()

	tok, err := c.JWTService.GenerateToken(jwt.Subject{UserID: "u1", Name: "Alice", Role: jwt.RoleUser})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/conversation?access_token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	hello, err := wsproto.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, wsproto.TypeHello, hello.Type)

	require.Eventually(t, func() bool { return c.Hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/conversation", strings.NewReader(`{"body":"hello gym"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	msg, err := wsproto.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, wsproto.TypeFeed, msg.Type)

	var ev struct {
		Type    string `json:"type"`
		Message struct {
			Body string `json:"body"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(msg.Content, &ev))
	assert.Equal(t, "insert", ev.Type)
	assert.Equal(t, "hello gym", ev.Message.Body)
}

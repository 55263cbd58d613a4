package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ironflex/backend/internal/auth"
	"ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/jwt"
	"ironflex/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(tokens *jwt.Service, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler(), Authenticate(tokens))
	handlers = append(handlers, func(c *gin.Context) {
		u := auth.FromGin(c)
		if u == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, u.ID)
	})
	r.GET("/", handlers...)
	return r
}

func doGet(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	tokens := jwt.NewService("secret", time.Hour)
	r := setupRouter(tokens)

	w := doGet(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())

	token, err := tokens.GenerateToken(jwt.Subject{UserID: "u1", Name: "Alice", Role: jwt.RoleUser})
	require.NoError(t, err)
	w = doGet(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	w = doGet(r, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestRequireAdmin(t *testing.T) {
	tokens := jwt.NewService("secret", time.Hour)
	r := setupRouter(tokens, RequireAdmin())

	w := doGet(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userToken, _ := tokens.GenerateToken(jwt.Subject{UserID: "u1", Name: "Alice", Role: jwt.RoleUser})
	w = doGet(r, userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken, _ := tokens.GenerateToken(jwt.Subject{UserID: "a1", Name: "Admin", Role: jwt.RoleAdmin})
	w = doGet(r, adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireUser(t *testing.T) {
	r := setupRouter(jwt.NewService("secret", time.Hour), RequireUser())

	w := doGet(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHENTICATED")
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(logger.Discard(), RateLimiterOptions{
		Limit:          0.001,
		Burst:          2,
		ExpiryDuration: time.Minute,
	})
	r := setupRouter(jwt.NewService("secret", time.Hour), limiter.Middleware())

	assert.Equal(t, http.StatusOK, doGet(r, "").Code)
	assert.Equal(t, http.StatusOK, doGet(r, "").Code)

	w := doGet(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1000", w.Header().Get("Retry-After"))

	limiter.options.ExpiryDuration = -time.Second
	limiter.cleanup()
	assert.Equal(t, http.StatusOK, doGet(r, "").Code)
}

func TestAuthenticateQueryToken(t *testing.T) {
	tokens := jwt.NewService("secret", time.Hour)
	r := setupRouter(tokens)

	token, err := tokens.GenerateToken(jwt.Subject{UserID: "u2", Name: "Bob", Role: jwt.RoleUser})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u2", w.Body.String())
}

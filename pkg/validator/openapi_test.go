package validator

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ironflex/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schema = `
openapi: 3.0.3
info:
  title: test
  version: "1"
servers:
  - url: /api/v1
paths:
  /conversation:
    post:
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              properties:
                body:
                  type: string
                  maxLength: 10
      responses:
        "201":
          description: created
`

func TestMiddlewareRejectsInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schema), 0o600))

	v, err := NewOpenAPIValidator(path)
	require.NoError(t, err)
	assert.Equal(t, "test", v.Title())

	r := gin.New()
	r.Use(errors.ErrorHandler(), v.Middleware())
	r.POST("/api/v1/conversation", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/api/v1/other", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/conversation", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send(`{"body":"short"}`))
	assert.Equal(t, http.StatusBadRequest, send(`{"body":"far too long for this"}`))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/other", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, v.ReloadSchema())
}

func TestNewOpenAPIValidatorMissingFile(t *testing.T) {
	_, err := NewOpenAPIValidator(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedSchemaValidatesVotes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidator(filepath.Join("..", "..", "api", "openapi.yaml"))
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler(), v.Middleware())
	r.POST("/api/v1/topic/:id/vote", func(c *gin.Context) { c.Status(http.StatusOK) })

	vote := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/topic/t1/vote", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, vote(`{"reaction":"like"}`))
	assert.Equal(t, http.StatusBadRequest, vote(`{"reaction":"love"}`))
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"ironflex/backend/internal/auth"
	"ironflex/backend/internal/service"
	"ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves the shared conversation feed
type ConversationHandler struct {
	service *service.ConversationService
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(service *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// RegisterRoutes mounts the feed routes
func (h *ConversationHandler) RegisterRoutes(v1, admin *gin.RouterGroup) {
	v1.GET("/conversation", h.List)
	v1.POST("/conversation", middleware.RequireUser(), h.Send)

	admin.DELETE("/conversation/:id", h.Delete)
	admin.POST("/blacklist/refresh", h.RefreshBlacklist)
}

// List returns a page of history, newest first
func (h *ConversationHandler) List(c *gin.Context) {
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			errors.Abort(c, errors.NewBadRequestError("INVALID_CURSOR", "before must be an RFC 3339 timestamp"))
			return
		}
		before = &t
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errors.Abort(c, errors.NewBadRequestError("INVALID_LIMIT", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	page, err := h.service.List(c.Request.Context(), before, limit)
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Send posts a message as the current user
func (h *ConversationHandler) Send(c *gin.Context) {
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").WithDetails(err.Error()))
		return
	}

	msg, err := h.service.Send(c.Request.Context(), auth.FromGin(c), req)
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Delete removes a message for everyone
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), auth.FromGin(c), c.Param("id")); err != nil {
		errors.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshBlacklist drops the cached word list after an edit
func (h *ConversationHandler) RefreshBlacklist(c *gin.Context) {
	if err := h.service.InvalidateBlacklist(c.Request.Context()); err != nil {
		errors.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

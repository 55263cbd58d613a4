package api

import (
	"net/http"
	"strconv"

	"ironflex/backend/internal/auth"
	"ironflex/backend/internal/service"
	"ironflex/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ModerationHandler serves chat ban and blacklist management
type ModerationHandler struct {
	service *service.ModerationService
}

// NewModerationHandler creates a moderation handler
func NewModerationHandler(service *service.ModerationService) *ModerationHandler {
	return &ModerationHandler{service: service}
}

// RegisterRoutes mounts the moderation routes on the admin group
func (h *ModerationHandler) RegisterRoutes(admin *gin.RouterGroup) {
	chat := admin.Group("/chat")
	chat.GET("/bans", h.ListBans)
	chat.POST("/bans", h.Ban)
	chat.DELETE("/bans/:id", h.Unban)
	chat.GET("/blacklist", h.ListWords)
	chat.POST("/blacklist", h.AddWord)
	chat.DELETE("/blacklist/:id", h.RemoveWord)
}

type addWordRequest struct {
	Word string `json:"word" binding:"required"`
}

var errInvalidID = errors.NewBadRequestError("INVALID_ID", "id must be a positive integer")

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		errors.Abort(c, errInvalidID)
		return 0, false
	}
	return uint(id), true
}

// ListBans returns active bans; ?all=true includes lifted and expired ones
func (h *ModerationHandler) ListBans(c *gin.Context) {
	bans, err := h.service.ListBans(c.Request.Context(), auth.FromGin(c), c.Query("all") == "true")
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans})
}

// Ban bans a user from posting
func (h *ModerationHandler) Ban(c *gin.Context) {
	var req service.BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").WithDetails(err.Error()))
		return
	}

	ban, err := h.service.Ban(c.Request.Context(), auth.FromGin(c), req)
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ban": ban})
}

// Unban lifts a ban
func (h *ModerationHandler) Unban(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.service.Unban(c.Request.Context(), auth.FromGin(c), id); err != nil {
		errors.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListWords returns the blacklist
func (h *ModerationHandler) ListWords(c *gin.Context) {
	words, err := h.service.ListWords(c.Request.Context(), auth.FromGin(c))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"words": words})
}

// AddWord blacklists a word
func (h *ModerationHandler) AddWord(c *gin.Context) {
	var req addWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").WithDetails(err.Error()))
		return
	}

	word, err := h.service.AddWord(c.Request.Context(), auth.FromGin(c), req.Word)
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"word": word})
}

// RemoveWord takes a word off the blacklist
func (h *ModerationHandler) RemoveWord(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.service.RemoveWord(c.Request.Context(), auth.FromGin(c), id); err != nil {
		errors.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

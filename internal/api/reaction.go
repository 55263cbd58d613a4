package api

import (
	"net/http"

	"ironflex/backend/internal/auth"
	"ironflex/backend/internal/reaction"
	"ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// VoteRequest is the body of a toggle
type VoteRequest struct {
	Reaction string `json:"reaction" binding:"required"`
}

// ReactionHandler exposes like/dislike toggles
type ReactionHandler struct {
	service *reaction.Service
}

// NewReactionHandler creates a new reaction handler
func NewReactionHandler(service *reaction.Service) *ReactionHandler {
	return &ReactionHandler{service: service}
}

// RegisterRoutes mounts the vote routes for every target type. Each kind gets
// its own static prefix so the routes never collide with the rest of the API.
func (h *ReactionHandler) RegisterRoutes(v1, admin *gin.RouterGroup) {
	for _, kind := range reaction.TargetTypes {
		group := v1.Group("/" + string(kind))
		group.Use(middleware.RequireUser())
		group.POST("/:id/vote", h.toggle(kind))
		group.GET("/:id/vote", h.state(kind))

		admin.POST("/"+string(kind)+"/:id/recount", h.recount(kind))
	}
}

func (h *ReactionHandler) toggle(kind reaction.TargetType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Abort(c, errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").WithDetails(err.Error()))
			return
		}
		r, err := reaction.ParseReaction(req.Reaction)
		if err != nil {
			errors.Abort(c, err)
			return
		}

		result, err := h.service.Toggle(c.Request.Context(), auth.FromGin(c), kind, c.Param("id"), r)
		if err != nil {
			errors.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *ReactionHandler) state(kind reaction.TargetType) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.State(c.Request.Context(), auth.FromGin(c), kind, c.Param("id"))
		if err != nil {
			errors.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *ReactionHandler) recount(kind reaction.TargetType) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := h.service.Recount(c.Request.Context(), auth.FromGin(c), kind, c.Param("id"))
		if err != nil {
			errors.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, counts)
	}
}

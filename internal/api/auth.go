package api

import (
	"net/http"

	"ironflex/backend/internal/auth"
	"ironflex/backend/internal/models"
	"ironflex/backend/internal/service"
	"ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/logger"
	"ironflex/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	service *service.UserService
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *service.UserService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts /auth
func (h *AuthHandler) RegisterRoutes(v1 *gin.RouterGroup) {
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/signup", h.Signup)
		authRoutes.POST("/login", h.Login)
		authRoutes.GET("/me", middleware.RequireUser(), h.Me)
	}
}

// Signup handles user registration
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").WithDetails(err.Error()))
		return
	}

	user, token, err := h.service.CreateUser(c.Request.Context(), &req)
	if err != nil {
		errors.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_REQUEST", "Invalid request format").WithDetails(err.Error()))
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		errors.Abort(c, err)
		return
	}

	logger.FromGin(c).Info("User logged in successfully",
		"userID", user.ID,
		"role", user.Role,
	)

	c.JSON(http.StatusOK, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), auth.FromGin(c))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, user.ToResponse())
}

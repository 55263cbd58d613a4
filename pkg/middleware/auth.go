package middleware

import (
	"strings"

	"ironflex/backend/internal/auth"
	"ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/jwt"
	"ironflex/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// Authenticate resolves the bearer token, when present, into an auth.User on
// the context. Requests without a token pass through anonymously; a bad token
// is rejected.
func Authenticate(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			// websocket clients cannot set headers on the upgrade
			token = c.Query("access_token")
		}
		if token == "" {
			c.Next()
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			logger.FromGin(c).Warn("Invalid JWT token", "error", err.Error())
			errors.Abort(c, errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			return
		}

		user := &auth.User{
			ID:          claims.UserID,
			DisplayName: claims.Name,
			AvatarURL:   claims.Avatar,
			IsAdmin:     claims.HasRole(jwt.RoleAdmin),
		}
		c.Set(auth.GinKey, user)
		c.Set("claims", claims)
		c.Set("userID", claims.UserID)
		c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), user))

		c.Next()
	}
}

// RequireUser rejects anonymous requests
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth.FromGin(c) == nil {
			errors.Abort(c, errors.Unauthenticated)
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests from anyone but administrators
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.FromGin(c)
		if user == nil {
			errors.Abort(c, errors.Unauthenticated)
			return
		}
		if !user.IsAdmin {
			errors.Abort(c, errors.AdminOnly)
			return
		}
		c.Next()
	}
}

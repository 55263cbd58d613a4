package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

// User is the authenticated caller
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	IsAdmin     bool   `json:"isAdmin"`
}

type ctxKey struct{}

// GinKey is the gin context key the auth middleware stores the user under
const GinKey = "authUser"

// WithUser returns a context carrying u
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored by WithUser, or nil
func FromContext(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}

// FromGin returns the user set by the auth middleware, or nil for anonymous requests
func FromGin(c *gin.Context) *User {
	v, ok := c.Get(GinKey)
	if !ok {
		return nil
	}
	u, _ := v.(*User)
	return u
}

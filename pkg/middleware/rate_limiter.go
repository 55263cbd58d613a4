package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"ironflex/backend/internal/auth"
	"ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request (e.g. IP, user ID)
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc:        UserOrIPKey,
	}
}

// UserOrIPKey limits authenticated callers per user and anonymous ones per IP
func UserOrIPKey(c *gin.Context) string {
	if u := auth.FromGin(c); u != nil {
		return "user:" + u.ID
	}
	return "ip:" + c.ClientIP()
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller key
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
	logger  *logger.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = UserOrIPKey
	}

	return &RateLimiter{
		options: opts,
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// ErrRateLimited is returned once a caller exhausts its burst
var ErrRateLimited = errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later.")

// Middleware rejects callers over their budget with 429 and a Retry-After hint
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)
		lim := r.limiterFor(key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
		if lim.Allow() {
			c.Next()
			return
		}

		logger.FromGin(c).Warn("Rate limit exceeded", "client", key, "path", c.FullPath())
		c.Header("Retry-After", strconv.Itoa(r.retryAfter()))
		errors.Abort(c, ErrRateLimited)
	}
}

// retryAfter is the whole seconds until one token is back
func (r *RateLimiter) retryAfter() int {
	if r.options.Limit <= 0 || r.options.Limit == rate.Inf {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(r.options.Limit))))
}

func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if v, ok := r.clients[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(r.options.Limit, r.options.Burst)
	r.clients[key] = &client{limiter: lim, lastSeen: now}
	return lim
}

// Run removes idle clients every interval until ctx is done
func (r *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.options.ExpiryDuration)
	for k, v := range r.clients {
		if v.lastSeen.Before(cutoff) {
			delete(r.clients, k)
		}
	}
	r.logger.Debug("Rate limiter cleanup", "clients", len(r.clients))
}

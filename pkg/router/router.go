package router

import (
	"net/http"
	"strings"

	"ironflex/backend/internal/api"
	"ironflex/backend/internal/ws"
	"ironflex/backend/pkg/config"
	"ironflex/backend/pkg/di"
	"ironflex/backend/pkg/errors"
	"ironflex/backend/pkg/logger"
	"ironflex/backend/pkg/middleware"
	"ironflex/backend/pkg/observability"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Version is reported by the health endpoint
var Version = "dev"

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Config      *config.Config
	RateLimiter *middleware.RateLimiter
	gatherer    prometheus.Gatherer
}

// New creates a router with the shared middleware stack installed
func New(container *di.Container, gatherer prometheus.Gatherer) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.LogError(err, "Invalid trusted proxies, trusting none")
		engine.SetTrustedProxies(nil)
	}

	// Recovery wraps everything so panics in later middleware are caught too
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(observability.TracingMiddleware())
	engine.Use(errors.ErrorHandler())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	opts := middleware.DefaultRateLimiterOptions()
	opts.Limit = rate.Limit(cfg.Security.RateLimit)
	opts.Burst = cfg.Security.RateLimitBurst

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Config:      cfg,
		RateLimiter: middleware.NewRateLimiter(container.Logger, opts),
		gatherer:    gatherer,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container

	healthHandler := api.NewHealthHandler(c.Health, Version)
	healthHandler.RegisterHealthRoutes(r.Engine)
	r.Engine.GET("/health/ready", gin.WrapF(c.Health.HTTPHandler()))
	r.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	if path := r.Config.OpenAPI.SchemaPath; path != "" {
		r.AddOpenAPIValidation(path)
	}

	// API version 1 routes
	v1 := r.Engine.Group("/api/v1")
	v1.Use(middleware.Authenticate(c.JWTService), r.RateLimiter.Middleware())
	healthHandler.RegisterHealthRoutes(v1)

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireAdmin())

	api.NewAuthHandler(c.UserService, r.Logger).RegisterRoutes(v1)
	api.NewReactionHandler(c.ReactionService).RegisterRoutes(v1, admin)
	api.NewConversationHandler(c.ConversationService).RegisterRoutes(v1, admin)
	api.NewModerationHandler(c.ModerationService).RegisterRoutes(admin)

	// Live feed
	v1.GET("/ws/conversation", ws.ServeWs(c.Hub))
}

func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// corsMiddleware allows the configured origins and the websocket upgrade headers
func corsMiddleware(allowed []string) gin.HandlerFunc {
	wildcard := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case origin == "":
		case wildcard:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case set[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, X-Request-ID, Retry-After")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

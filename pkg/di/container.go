package di

import (
	"context"
	"fmt"
	"time"

	"ironflex/backend/internal/reaction"
	"ironflex/backend/internal/repository"
	"ironflex/backend/internal/service"
	"ironflex/backend/internal/ws"
	"ironflex/backend/pkg/cache"
	"ironflex/backend/pkg/config"
	"ironflex/backend/pkg/health"
	"ironflex/backend/pkg/jwt"
	"ironflex/backend/pkg/logger"
	"ironflex/backend/pkg/observability"
	"ironflex/backend/pkg/secrets"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const healthCheckPeriod = 30 * time.Second

// Container holds all the dependencies for the application
type Container struct {
	Config              *config.Config
	DB                  *gorm.DB
	Redis               redis.UniversalClient
	Logger              *logger.Logger
	Metrics             *observability.Metrics
	Cache               cache.Cache
	JWTService          *jwt.Service
	Hub                 *ws.Hub
	Bridge              *ws.Bridge
	Health              *health.Checker
	ReactionService     *reaction.Service
	ConversationService *service.ConversationService
	ModerationService   *service.ModerationService
	UserService         *service.UserService
}

// Deps are the connections built by main
type Deps struct {
	DB       *gorm.DB
	Redis    redis.UniversalClient
	Logger   *logger.Logger
	Secrets  secrets.Manager
	Registry prometheus.Registerer
}

// New wires the services. Without Redis the cache is in-process and feed
// events only reach clients of this instance.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Container, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("di: database is required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetGlobal()
	}

	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	metrics := observability.NewMetrics(deps.Registry)

	jwtSecret := cfg.JWT.Secret
	if deps.Secrets != nil {
		jwtSecret = deps.Secrets.GetSecretWithDefault(ctx, "jwt-secret", jwtSecret)
	}
	if jwtSecret == "" && cfg.IsProduction() {
		return nil, fmt.Errorf("di: JWT_SECRET must be set in production")
	}
	jwtService := jwt.NewService(jwtSecret, cfg.JWT.Expiry)

	checker := health.NewChecker(log, healthCheckPeriod)
	checker.RegisterDatabaseCheck(func(ctx context.Context) error {
		sqlDB, err := deps.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	hub := ws.NewHub(log, metrics.WSClients)

	var (
		c         cache.Cache
		publisher service.Publisher
		bridge    *ws.Bridge
	)
	if deps.Redis != nil {
		c = cache.NewRedis(deps.Redis, "ironflex:")
		publisher = ws.NewRedisPublisher(deps.Redis, cfg.Redis.Channel, metrics.FeedEvents)
		bridge = ws.NewBridge(deps.Redis, cfg.Redis.Channel, hub, log)
		checker.RegisterRedisCheck(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		})
	} else {
		c = cache.NewMemory(cache.MemoryOptions{MaxItems: cfg.Cache.MaxSize})
		publisher = ws.NewHubPublisher(hub, metrics.FeedEvents)
	}

	moderation := repository.NewGormModerationRepository(deps.DB)
	users := repository.NewGormUserRepository(deps.DB)

	reactionService := reaction.NewService(repository.NewGormReactionStore(deps.DB), log, metrics.Votes)
	conversationService := service.NewConversationService(
		repository.NewGormMessageRepository(deps.DB),
		moderation,
		publisher,
		c,
		service.ConversationConfigFrom(cfg),
		log,
	).WithRejectionMetric(metrics.FeedRejections)
	moderationService := service.NewModerationService(moderation, users, c, log)
	userService := service.NewUserService(users, jwtService)

	return &Container{
		Config:              cfg,
		DB:                  deps.DB,
		Redis:               deps.Redis,
		Logger:              log,
		Metrics:             metrics,
		Cache:               c,
		JWTService:          jwtService,
		Hub:                 hub,
		Bridge:              bridge,
		Health:              checker,
		ReactionService:     reactionService,
		ConversationService: conversationService,
		ModerationService:   moderationService,
		UserService:         userService,
	}, nil
}

// Run starts the background workers and blocks until ctx is cancelled
func (c *Container) Run(ctx context.Context) {
	c.Health.Start(ctx)
	if mem, ok := c.Cache.(*cache.MemoryCache); ok && c.Config.Cache.PurgeWindow > 0 {
		go mem.Sweep(ctx, c.Config.Cache.PurgeWindow)
	}
	if c.Bridge != nil {
		go func() {
			if err := c.Bridge.Run(ctx); err != nil {
				c.Logger.LogError(err, "feed bridge stopped")
			}
		}()
	}
	c.Hub.Run(ctx)
}

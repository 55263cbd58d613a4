package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	igrpc "ironflex/backend/internal/grpc"
	"ironflex/backend/internal/models"
	"ironflex/backend/pkg/config"
	"ironflex/backend/pkg/di"
	"ironflex/backend/pkg/logger"
	"ironflex/backend/pkg/observability"
	"ironflex/backend/pkg/router"
	"ironflex/backend/pkg/secrets"
	sharedredis "ironflex/backend/shared/redis"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "ironflex-backend"

func main() {
	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	if v := os.Getenv("APP_VERSION"); v != "" {
		router.Version = v
	}
	log.Info("Starting application", "version", router.Version, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := config.NewDB(ctx, cfg)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_feed_messages_created ON feed_messages(created_at DESC, id DESC)").Error; err != nil {
		log.LogError(err, "Failed to create feed index", "index", "idx_feed_messages_created")
	}

	deps := di.Deps{DB: db, Logger: log}

	if client := sharedredis.NewClient(cfg); client != nil {
		if err := sharedredis.Ping(ctx, client, 5*time.Second); err != nil {
			log.LogError(err, "Redis unreachable, running single-instance", "addr", cfg.Redis.Addr)
			client.Close()
		} else {
			deps.Redis = client
			defer client.Close()
		}
	}

	deps.Secrets, err = secrets.New(cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}

	// Metrics and tracing
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Registry = registry

	mp, err := observability.SetupMetrics(serviceName, registry)
	if err != nil {
		log.LogError(err, "Failed to set up metrics")
		os.Exit(1)
	}
	defer mp.Shutdown(context.Background())

	var traceOut io.Writer
	if os.Getenv("TRACE_STDOUT") == "true" {
		traceOut = os.Stdout
	}
	shutdownTracing, err := observability.SetupTracing(serviceName, traceOut)
	if err != nil {
		log.LogError(err, "Failed to set up tracing")
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	container, err := di.New(ctx, cfg, deps)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	go container.Run(ctx)

	r := router.New(container, registry)
	r.SetupRoutes()
	go r.RateLimiter.Run(ctx, time.Minute)

	grpcServer := igrpc.NewServer(container.Health, log)
	go func() {
		if err := grpcServer.ListenAndServe(ctx, ":"+cfg.GRPC.Port); err != nil {
			log.LogError(err, "gRPC health server failed")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port, "grpc_port", cfg.GRPC.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}

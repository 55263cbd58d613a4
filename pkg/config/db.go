package config

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const dbRetryDelay = 5 * time.Second

// DSN builds the PostgreSQL connection string for the configured database
func (c *Config) DSN() string {
	d := c.Database
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func gormLogLevel(c *Config) gormlogger.LogLevel {
	switch {
	case c.Logging.Level == "debug":
		return gormlogger.Info
	case c.IsProduction():
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}

// NewDB opens the pool and pings it, retrying up to Database.Retries times.
// ctx cancels the wait between attempts.
func NewDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormLogLevel(cfg)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	retries := max(cfg.Database.Retries, 1)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		db, err := open(ctx, cfg, gormConfig)
		if err == nil {
			return db, nil
		}
		lastErr = err
		if attempt == retries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dbRetryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retries, lastErr)
}

func open(ctx context.Context, cfg *Config, gormConfig *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(min(10, cfg.Database.MaxConns))
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

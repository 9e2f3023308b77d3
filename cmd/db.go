package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/settlement/internal"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	dbDriver         = "pgx"
	dbConnectRetries = 5
)

// initDB opens the pool, retrying while the database is still starting.
func initDB(ctx context.Context, cfg internal.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, error) {
	var db *sqlx.DB

	backoff := retry.WithMaxRetries(dbConnectRetries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn, err := sqlx.ConnectContext(ctx, dbDriver, cfg.GetDSN())
		if err != nil {
			logger.Warn("database not reachable yet", "error", err)
			return retry.RetryableError(err)
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// initGorm shares the sqlx pool with GORM.
func initGorm(db *sqlx.DB, env string) (*gorm.DB, error) {
	level := gormlogger.Warn
	if env == internal.EnvProduction {
		level = gormlogger.Error
	}
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

// Package database opens the relational store and keeps its schema current.
package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Aidin1998/talabin/internal/config"
	"github.com/Aidin1998/talabin/pkg/metrics"
	"github.com/Aidin1998/talabin/pkg/models"
)

// Open connects to the configured driver.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres", "":
		return NewPostgresDB(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, log)
	case "sqlite":
		return NewSQLiteDB(cfg.DSN, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLiteDB opens a SQLite database. SQLite allows a single writer, so the
// pool is limited to one connection.
func NewSQLiteDB(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates or updates the schema of every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// ReportPoolStats samples connection pool usage into the DB gauges until ctx
// is done.
func ReportPoolStats(ctx context.Context, db *gorm.DB, interval time.Duration) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := sqlDB.Stats()
			metrics.DBOpenConns.Set(float64(stats.OpenConnections))
			metrics.DBInUseConns.Set(float64(stats.InUse))
		}
	}
}

func newGormLogger(log *zap.Logger) logger.Interface {
	if log == nil {
		return logger.Discard
	}
	return logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

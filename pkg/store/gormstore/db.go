package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBConfig holds the SQL connection settings.
type DBConfig struct {
	Driver     string
	DSN        string
	MaxConns   int
	MaxIdle    int
	MaxRetries int
	RetryDelay time.Duration
	LogLevel   logger.LogLevel
}

// OpenDB opens the database, configures the pool and waits for it to answer a ping.
func OpenDB(ctx context.Context, cfg DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	logLevel := cfg.LogLevel
	if logLevel == 0 {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// One writer at a time; also keeps a shared in-memory database alive.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdle)
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	b := backoff.NewExponentialBackOff()
	if cfg.RetryDelay > 0 {
		b.InitialInterval = cfg.RetryDelay
	}
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := sqlDB.PingContext(ctx); err != nil {
			logrus.Warnf("database ping failed (attempt %d): %v", attempt, err)
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database unreachable after %d attempts: %w", attempt, err)
	}

	logrus.Infof("connected to %s database (attempt %d)", cfg.Driver, attempt)
	return db, nil
}

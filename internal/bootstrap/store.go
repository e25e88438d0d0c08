package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/internal/config"
	"github.com/partnerforge/progression/pkg/ack"
	"github.com/partnerforge/progression/pkg/store"
	"github.com/partnerforge/progression/pkg/store/gormstore"
	"github.com/partnerforge/progression/pkg/store/redisstore"
)

// Backend is the storage selected by STORE_DRIVER.
type Backend struct {
	Store store.Store
	Acks  ack.Store
}

// Close releases the backend connection.
func (b *Backend) Close() error {
	return b.Store.Close()
}

// InitStore connects to the configured backend. The SQL drivers run pending
// migrations before returning.
func InitStore(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverRedis:
		client, err := redisstore.NewClient(ctx, redisstore.ClientConfig{
			Host:       cfg.RedisHost,
			Port:       cfg.RedisPort,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.RedisMaxRetries,
			RetryDelay: cfg.RedisRetryDelay(),
		})
		if err != nil {
			return nil, err
		}
		logrus.Infof("using redis store")
		return &Backend{
			Store: redisstore.New(client),
			Acks:  redisstore.NewAckStore(client),
		}, nil

	case config.DriverPostgres, config.DriverSQLite:
		db, err := gormstore.OpenDB(ctx, gormstore.DBConfig{
			Driver:     cfg.StoreDriver,
			DSN:        cfg.DatabaseDSN,
			MaxConns:   cfg.DatabaseMaxConns,
			MaxIdle:    cfg.DatabaseMaxIdle,
			MaxRetries: cfg.DatabaseMaxRetries,
		})
		if err != nil {
			return nil, err
		}
		s := gormstore.New(db)
		if err := gormstore.Migrate(db); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logrus.Infof("using %s store", cfg.StoreDriver)
		return &Backend{
			Store: s,
			Acks:  gormstore.NewAckStore(db),
		}, nil
	}

	return nil, fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
}

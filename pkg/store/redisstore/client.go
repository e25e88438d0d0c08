package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ClientConfig holds the Redis connection settings.
type ClientConfig struct {
	Host       string
	Port       string
	Password   string
	DB         int
	MaxRetries int
	RetryDelay time.Duration
}

// NewClient initializes and returns a Redis client, retrying the first ping with
// exponential backoff.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	addr := cfg.Host + ":" + cfg.Port

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			logrus.Warnf("Redis connection failed (attempt %d): %v", attempt, err)
			return err
		}
		return nil
	}, policy)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s after %d attempts: %w", addr, attempt, err)
	}

	logrus.Infof("connected to Redis at %s (attempt %d)", addr, attempt)
	return client, nil
}

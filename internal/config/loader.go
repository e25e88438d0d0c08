package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Supported store drivers.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads configuration from environment variables.
// It attempts to load from .env file first (for local development),
// then parses environment variables into the Config struct.
func Load() (*Config, error) {
	// In production (Docker/K8s), environment variables are injected directly
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("no .env file found or error loading it: %v (this is normal in production)", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges and driver-specific settings.
// Every problem is reported, not only the first.
func (c *Config) Validate() error {
	var errs []string

	for name, port := range map[string]int{
		"HTTP_PORT":    c.HTTPPort,
		"GRPC_PORT":    c.GRPCPort,
		"METRICS_PORT": c.MetricsPort,
	} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid %s: %d (must be 1-65535)", name, port))
		}
	}
	if c.HTTPPort == c.GRPCPort || c.HTTPPort == c.MetricsPort || c.GRPCPort == c.MetricsPort {
		errs = append(errs, "HTTP_PORT, GRPC_PORT and METRICS_PORT must differ")
	}

	switch c.StoreDriver {
	case DriverRedis:
		if c.RedisHost == "" {
			errs = append(errs, "REDIS_HOST is required for the redis driver")
		}
		if c.RedisMaxRetries < 0 {
			errs = append(errs, "REDIS_MAX_RETRIES must be non-negative")
		}
	case DriverPostgres, DriverSQLite:
		if c.DatabaseDSN == "" {
			errs = append(errs, fmt.Sprintf("DATABASE_DSN is required for the %s driver", c.StoreDriver))
		}
		if c.DatabaseMaxConns < 1 {
			errs = append(errs, "DATABASE_MAX_CONNS must be at least 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported STORE_DRIVER %q (expected redis, postgres or sqlite)", c.StoreDriver))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEZONE %q: %v", c.Timezone, err))
	}
	if c.LoginXP < 0 {
		errs = append(errs, "LOGIN_XP must be non-negative")
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be non-negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, "RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOG_LEVEL %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// RedisRetryDelay returns the initial Redis connect backoff.
func (c *Config) RedisRetryDelay() time.Duration {
	return time.Duration(c.RedisRetryDelayMs) * time.Millisecond
}

// Location returns the calendar time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

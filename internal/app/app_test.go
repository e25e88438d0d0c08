package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/partnerforge/progression/internal/config"
)

func TestNewAndShutdown_SQLite(t *testing.T) {
	cfg := &config.Config{
		HTTPPort:           18000,
		GRPCPort:           16565,
		MetricsPort:        18080,
		Environment:        "test",
		ServiceName:        "progression-test",
		StoreDriver:        config.DriverSQLite,
		DatabaseDSN:        "file:" + filepath.Join(t.TempDir(), "app.db"),
		DatabaseMaxConns:   1,
		DatabaseMaxRetries: 1,
		Timezone:           "UTC",
		LogLevel:           "info",
		HouseAccount:       "PartnerForge HQ",
		RateLimitRPS:       5,
		RateLimitBurst:     10,
	}
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.rateLimiter)

	assert.NoError(t, a.Shutdown(context.Background()))
}

func TestNew_FailsOnUnreachableCatalog(t *testing.T) {
	cfg := &config.Config{
		ServiceName: "progression-test",
		StoreDriver: config.DriverSQLite,
		DatabaseDSN: "file:" + filepath.Join(t.TempDir(), "app.db"),
		CatalogPath: filepath.Join(t.TempDir(), "missing.yaml"),
		Timezone:    "UTC",
	}

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

const unknownRequirementCatalog = `
ranks:
  - name: Recruit
    xp_threshold: 0
    commission_rate: 0.1
lessons:
  - {id: recruit-quiz, title: Recruit quiz, stage: 1, rank_required: Recruit, type: quiz, xp_reward: 100, order_index: 1}
challenges:
  - {id: w1-mind-reading, title: Read minds, week_number: 1, requirement: {type: telepathy, target: 3}, xp_reward: 100}
`

func TestNew_ReleasesStartedComponentsOnFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(unknownRequirementCatalog), 0o600))

	cfg := &config.Config{
		ServiceName:       "progression-test",
		StoreDriver:       config.DriverRedis,
		RedisHost:         mr.Host(),
		RedisPort:         mr.Port(),
		RedisMaxRetries:   1,
		RedisRetryDelayMs: 10,
		CatalogPath:       path,
		Timezone:          "UTC",
	}

	// The store connects before the unknown requirement type is rejected.
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")

	assert.Eventually(t, func() bool {
		return mr.CurrentConnectionCount() == 0
	}, time.Second, 10*time.Millisecond, "redis connection left open")

	_, span := otel.Tracer("app-test").Start(context.Background(), "after-failed-init")
	defer span.End()
	assert.False(t, span.IsRecording(), "tracer provider left running")
}

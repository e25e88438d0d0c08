package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/internal/bootstrap"
	"github.com/partnerforge/progression/internal/config"
	"github.com/partnerforge/progression/internal/server"
	"github.com/partnerforge/progression/pkg/ack"
	"github.com/partnerforge/progression/pkg/handler"
	"github.com/partnerforge/progression/pkg/leaderboard"
	"github.com/partnerforge/progression/pkg/progression"
	"github.com/partnerforge/progression/pkg/store"
)

const rateLimiterCleanupInterval = 10 * time.Minute

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	httpServer        *server.HTTPServer
	grpcServer        *server.GRPCServer
	metricsServer     *server.MetricsServer
	backend           *bootstrap.Backend
	rateLimiter       *handler.SellerRateLimiter
	shutdownTelemetry func(context.Context) error
}

// New creates and initializes a new application instance.
//
// Components are initialized in dependency order:
// 1. Telemetry (so every later span has a provider)
// 2. Catalog (ranks, lessons, weekly challenges)
// 3. Store (redis, postgres or sqlite)
// 4. Progression engine, challenge counters and pipeline
// 5. HTTP API
// 6. gRPC health and metrics servers
//
// When a step fails, whatever the earlier steps started is released.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = app.Shutdown(ctx)
		}
	}()

	// ============================================================
	// Step 1: Setup telemetry
	// ============================================================
	shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, cfg.ServiceID, cfg.ZipkinEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	app.shutdownTelemetry = shutdownTelemetry

	// ============================================================
	// Step 2: Load the catalog
	// ============================================================
	c, err := bootstrap.InitCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	// ============================================================
	// Step 3: Connect the store
	// ============================================================
	app.backend, err = bootstrap.InitStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	// ============================================================
	// Step 4: Engine, challenge counters and pipeline
	// ============================================================
	engine := progression.New(app.backend.Store, c,
		progression.WithLocation(cfg.Location()),
		progression.WithLoginXP(cfg.LoginXP),
	)

	registry, err := bootstrap.InitChallengeRegistry(c)
	if err != nil {
		return nil, err
	}

	manager, evaluator, err := bootstrap.InitPipeline(engine, registry)
	if err != nil {
		return nil, err
	}

	// ============================================================
	// Step 5: HTTP API
	// ============================================================
	health := store.NewHealthChecker(app.backend.Store)

	h := handler.New(handler.Dependencies{
		Engine:       engine,
		Manager:      manager,
		Evaluator:    evaluator,
		Leaderboard:  leaderboard.NewService(app.backend.Store),
		Acks:         ack.NewService(app.backend.Acks),
		Health:       health,
		HouseAccount: cfg.HouseAccount,
	})

	routerCfg := handler.RouterConfig{
		ServiceName:  cfg.ServiceName,
		AllowOrigins: cfg.CORSOrigins,
	}
	if cfg.RateLimitRPS > 0 {
		app.rateLimiter = handler.NewSellerRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimiterCleanupInterval)
		routerCfg.RateLimiter = app.rateLimiter
		logrus.Infof("per-seller rate limit: %.2f req/s, burst %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, handler.NewRouter(h, routerCfg))

	// ============================================================
	// Step 6: gRPC health and metrics servers
	// ============================================================
	app.grpcServer = server.NewGRPCServer(cfg.GRPCPort, health)
	if err = app.grpcServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	if err = app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	logrus.Info("application initialized successfully")

	return app, nil
}

package config

// Config holds all application configuration loaded from environment variables.
// This struct uses github.com/caarlos0/env for automatic environment variable parsing.
//
// Use struct tags to define:
// - `env:"VAR_NAME"` - the environment variable name
// - `env:",required"` - make it required
// - `envDefault:"value"` - set a default value
//
// After adding fields here, update loader.go Validate() if custom
// validation is needed.
type Config struct {
	// ============================================================
	// Server configuration
	// ============================================================
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8000"`
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"6565"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"PartnerProgression"`
	ServiceID   int64  `env:"SERVICE_ID" envDefault:"0"`

	// ============================================================
	// Logging configuration
	// ============================================================
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// ============================================================
	// Storage configuration
	// ============================================================
	// StoreDriver selects the backend: redis, postgres or sqlite.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"redis"`

	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisDB           int    `env:"REDIS_DB" envDefault:"0"`
	RedisMaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`

	DatabaseDSN        string `env:"DATABASE_DSN"`
	DatabaseMaxConns   int    `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	DatabaseMaxIdle    int    `env:"DATABASE_MAX_IDLE" envDefault:"5"`
	DatabaseMaxRetries int    `env:"DATABASE_MAX_RETRIES" envDefault:"5"`

	// ============================================================
	// Progression configuration
	// ============================================================
	// CatalogPath points at a catalog YAML; the embedded default is used when empty.
	CatalogPath string `env:"CATALOG_PATH"`
	// Timezone is the IANA zone used for calendar days and weeks.
	Timezone     string `env:"TIMEZONE" envDefault:"UTC"`
	LoginXP      int64  `env:"LOGIN_XP" envDefault:"0"`
	HouseAccount string `env:"HOUSE_ACCOUNT" envDefault:"PartnerForge HQ"`

	// ============================================================
	// HTTP configuration
	// ============================================================
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`

	// ============================================================
	// Telemetry configuration
	// ============================================================
	ZipkinEndpoint string `env:"ZIPKIN_ENDPOINT"`
}

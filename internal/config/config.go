package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"exam-platform"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres  Postgres
	Redis     Redis
	Security  Security
	Engine    Engine
	Challenge Challenge
	CORS      CORS
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Redis holds attempt-store + cache configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores secrets for token validation.
type Security struct {
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
}

// Engine groups test-session defaults.
type Engine struct {
	DefaultTimeBudget time.Duration `env:"DEFAULT_TIME_BUDGET" envDefault:"10m"`
	SyncRetryLimit    int           `env:"SYNC_RETRY_LIMIT" envDefault:"3"`
	SyncRetryBackoff  time.Duration `env:"SYNC_RETRY_BACKOFF" envDefault:"250ms"`
	AttemptTTL        time.Duration `env:"ATTEMPT_TTL" envDefault:"48h"`
	CatalogCacheTTL   time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"10m"`
	RecencyWindow     time.Duration `env:"SELECTION_RECENCY_WINDOW" envDefault:"1h"`
	ExpirySweepEvery  time.Duration `env:"CHALLENGE_EXPIRY_SWEEP" envDefault:"1m"`
}

// Challenge governs the two-participant wager mode.
type Challenge struct {
	Stake         int           `env:"CHALLENGE_STAKE_COINS" envDefault:"50"`
	DefaultWindow time.Duration `env:"CHALLENGE_WINDOW" envDefault:"24h"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Service holds process-level settings.
type Service struct {
	Environment string `env:"SERVICE_ENVIRONMENT" envDefault:"development"`
	APIPort     string `env:"SERVICE_API_PORT" envDefault:"8080"`
}

// Database holds the Postgres connection settings.
type Database struct {
	DSN          string `env:"DATABASE_DSN,required"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
}

// Valkey holds the delivery-id cache settings. The cache is a fast path only;
// the database unique constraint remains the source of truth.
type Valkey struct {
	Addr               string `env:"VALKEY_ADDR"`
	IdempotencyEnabled bool   `env:"VALKEY_IDEMPOTENCY_ENABLED" envDefault:"true"`
	IdempotencyTTLSec  int    `env:"VALKEY_IDEMPOTENCY_TTL_SEC" envDefault:"86400"`
	FailOpen           bool   `env:"VALKEY_IDEMPOTENCY_FAIL_OPEN" envDefault:"true"`
}

// Engine holds the evaluation worker-pool settings.
type Engine struct {
	Workers   int `env:"ENGINE_WORKERS" envDefault:"4"`
	QueueSize int `env:"ENGINE_QUEUE_SIZE" envDefault:"256"`
}

// Badges holds batch-job settings. The timezone anchors day and month
// boundaries for cap windows and competition windows alike.
type Badges struct {
	Timezone string `env:"BADGES_TIMEZONE" envDefault:"UTC"`
}

type Config struct {
	Service  Service
	Database Database
	Valkey   Valkey
	Engine   Engine
	Badges   Badges
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

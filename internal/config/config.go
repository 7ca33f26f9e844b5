package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type SessionBackend string

const (
	BackendMemory SessionBackend = "memory"
	BackendSQLite SessionBackend = "sqlite"
	BackendRedis  SessionBackend = "redis"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/reelquiz.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	SessionBackend SessionBackend `env:"SESSION_BACKEND" envDefault:"memory"`
	RedisURL       string         `env:"REDIS_URL"`
	RedisPrefix    string         `env:"REDIS_PREFIX" envDefault:"reelquiz:"`

	MaxAttempts   int           `env:"GAME_MAX_ATTEMPTS" envDefault:"5"`
	IdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	TerminalGrace time.Duration `env:"SESSION_TERMINAL_GRACE" envDefault:"10m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	// RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	RateLimitIdle  time.Duration `env:"RATE_LIMIT_IDLE" envDefault:"10m"`

	HintGenURL     string        `env:"HINTGEN_URL"`
	HintGenTimeout time.Duration `env:"HINTGEN_TIMEOUT" envDefault:"10s"`
	CatalogSeed    bool          `env:"CATALOG_SEED" envDefault:"true"`

	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// ArtworkSource is an http(s) origin or a local directory.
	ArtworkSource  string        `env:"ARTWORK_SOURCE" envDefault:"data/artwork"`
	ArtworkTimeout time.Duration `env:"ARTWORK_TIMEOUT" envDefault:"10s"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	switch c.SessionBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("GAME_MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.IdleTimeout <= 0 || c.TerminalGrace <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("session timeouts and sweep interval must be positive")
	}
	return nil
}

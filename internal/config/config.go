// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/fairyhunter13/dtq/internal/domain"
)

// Config holds all application configuration parsed from environment
// variables, with a best-effort .env fallback for local development.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"DTQ"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8000"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Stream names
	JobStream       string `env:"JOB_STREAM" envDefault:"dtq:jobs"`
	DLQStream       string `env:"DLQ_STREAM" envDefault:"dtq:dlq"`
	JobEventsStream string `env:"JOB_EVENTS_STREAM" envDefault:"dtq:job-events"`

	// ConsumerGroup is shared by all workers; each worker derives a unique
	// consumer name within it.
	ConsumerGroup string `env:"CONSUMER_GROUP" envDefault:"dtq:workers"`

	// Retry configuration
	MaxRetries       int `env:"MAX_RETRIES" envDefault:"3"`
	InitialBackoffMS int `env:"INITIAL_BACKOFF_MS" envDefault:"1000"`
	MaxBackoffMS     int `env:"MAX_BACKOFF_MS" envDefault:"300000"`

	// Worker tuning. LeaseTTL must exceed the longest expected handler
	// runtime for the task mix.
	LeaseTTL      time.Duration `env:"LEASE_TTL" envDefault:"30s"`
	ReadBlock     time.Duration `env:"READ_BLOCK" envDefault:"5s"`
	ReadBatch     int64         `env:"READ_BATCH" envDefault:"10"`
	MetricsAddr   string        `env:"WORKER_METRICS_ADDR" envDefault:":9090"`

	// HTTP server
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"http://localhost:3000,http://localhost:5173"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses a .env file if present, then environment variables, into a
// Config. Environment variables win over the .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether development-only endpoints must be gated off.
func (c Config) IsProduction() bool { return strings.ToLower(c.Environment) == "production" }

// Backoff returns the retry backoff policy derived from the ms knobs.
func (c Config) Backoff() domain.BackoffPolicy {
	return domain.BackoffPolicy{
		Initial: time.Duration(c.InitialBackoffMS) * time.Millisecond,
		Max:     time.Duration(c.MaxBackoffMS) * time.Millisecond,
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "DTQ", cfg.AppName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "dtq:jobs", cfg.JobStream)
	assert.Equal(t, "dtq:dlq", cfg.DLQStream)
	assert.Equal(t, "dtq:job-events", cfg.JobEventsStream)
	assert.Equal(t, "dtq:workers", cfg.ConsumerGroup)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1000, cfg.InitialBackoffMS)
	assert.Equal(t, 300000, cfg.MaxBackoffMS)
	assert.Equal(t, 30*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 5*time.Second, cfg.ReadBlock)
	assert.Equal(t, int64(10), cfg.ReadBatch)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JOB_STREAM", "custom:jobs")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("INITIAL_BACKOFF_MS", "250")
	t.Setenv("LEASE_TTL", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "custom:jobs", cfg.JobStream)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250, cfg.InitialBackoffMS)
	assert.Equal(t, 45*time.Second, cfg.LeaseTTL)
}

func TestBackoffPolicyDerivation(t *testing.T) {
	t.Setenv("INITIAL_BACKOFF_MS", "2000")
	t.Setenv("MAX_BACKOFF_MS", "8000")

	cfg, err := Load()
	require.NoError(t, err)

	p := cfg.Backoff()
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 8*time.Second, p.Max)
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 8*time.Second, p.Delay(4))
}

func TestIsProductionCaseInsensitive(t *testing.T) {
	t.Setenv("ENVIRONMENT", "Production")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

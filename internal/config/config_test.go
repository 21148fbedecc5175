package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "value")
	t.Setenv("X_INT", "42")
	t.Setenv("X_DUR", "90s")
	t.Setenv("X_BAD", "not-a-number")

	assert.Equal(t, "value", getenv("X_STR", "def"))
	assert.Equal(t, "def", getenv("X_MISSING", "def"))

	assert.Equal(t, 42, envInt("X_INT", 7))
	assert.Equal(t, 7, envInt("X_MISSING", 7))
	assert.Equal(t, 7, envInt("X_BAD", 7))

	assert.Equal(t, 90*time.Second, envDur("X_DUR", time.Minute))
	assert.Equal(t, time.Minute, envDur("X_MISSING", time.Minute))
	assert.Equal(t, time.Minute, envDur("X_BAD", time.Minute))
}

func TestLoadRateLimitConfigClampsValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-2")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	// TTL shorter than a few refill intervals would evict live buckets.
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadCacheConfigDefaults(t *testing.T) {
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 15*time.Second, cfg.TTL)
	assert.Equal(t, "feed", cfg.Prefix)
}

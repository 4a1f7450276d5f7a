package server

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, 1024, cfg.Capacity)
	assert.Equal(t, "static", cfg.StaticDir)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigMatchesDefaults(t *testing.T) {
	for _, key := range []string{
		"SERVER_PORT", "RELAY_CAPACITY", "STATIC_DIR", "ALLOWED_ORIGINS",
		"MAX_BODY_BYTES", "RATE_LIMIT_BURST", "RATE_LIMIT_REFILL_INTERVAL",
		"SSE_KEEPALIVE", "SHUTDOWN_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RELAY_CAPACITY", "16")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("RATE_LIMIT_BURST", "20")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("SSE_KEEPALIVE", "0s")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, 16, cfg.Capacity)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.Zero(t, cfg.KeepAlive)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	t.Setenv("RELAY_CAPACITY", "lots")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSanitizeConfig(t *testing.T) {
	t.Parallel()

	cfg := sanitizeConfig(Config{
		Port:            " ",
		Capacity:        -1,
		MaxBodyBytes:    0,
		RateLimit:       RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		KeepAlive:       -time.Second,
		ShutdownTimeout: 0,
		AllowedOrigins:  []string{" ", " http://x.example "},
	})

	def := defaultConfig()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.Capacity, cfg.Capacity)
	assert.Equal(t, def.MaxBodyBytes, cfg.MaxBodyBytes)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Zero(t, cfg.KeepAlive)
	assert.Equal(t, def.ShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"http://x.example"}, cfg.AllowedOrigins)
}

func TestSanitizeConfigKeepsHostPort(t *testing.T) {
	t.Parallel()

	cfg := sanitizeConfig(Config{Port: "127.0.0.1:7000"})
	assert.Equal(t, "127.0.0.1:7000", cfg.Port)
}

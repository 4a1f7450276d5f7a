// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/relay/internal/broadcast"
)

// RateLimitConfig defines the per-client publish rate: Burst messages per
// RefillInterval.
type RateLimitConfig struct {
	Burst          int           `env:"BURST" envDefault:"5"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration. Every field can be set through the
// environment or a .env file in the working directory.
type Config struct {
	Port            string          `env:"SERVER_PORT" envDefault:":8080"`
	Capacity        int             `env:"RELAY_CAPACITY" envDefault:"1024"`
	StaticDir       string          `env:"STATIC_DIR" envDefault:"static"`
	AllowedOrigins  []string        `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	MaxBodyBytes    int64           `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimit       RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	KeepAlive       time.Duration   `env:"SSE_KEEPALIVE" envDefault:"30s"`
	ShutdownTimeout time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string          `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string          `env:"LOG_FORMAT" envDefault:"text"`
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Port:           ":8080",
		Capacity:       broadcast.DefaultCapacity,
		StaticDir:      "static",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxBodyBytes:   1 << 20,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		KeepAlive:       30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// LoadConfig reads a .env file if one exists, then parses the environment.
// Invalid or non-positive values fall back to their defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = def.Port
	} else if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	if cfg.KeepAlive < 0 {
		cfg.KeepAlive = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins

	return cfg
}

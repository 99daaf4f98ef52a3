// Package config loads and validates process configuration from the
// environment. A .env file is honored when present (development); real
// deployments set variables directly.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/c360/socialgate/errors"
)

// Config is the full process configuration.
type Config struct {
	// BindAddress is the HTTP bind address (default ":8000")
	BindAddress string

	// Path is the GraphQL endpoint path (default "/graphql")
	Path string

	// Secret signs and verifies session tokens. Required: with no secret
	// the credential verifier fails closed and no token ever validates,
	// so startup refuses to proceed without one.
	Secret string

	// TokenTTL is the session token lifetime (default 30m)
	TokenTTL time.Duration

	// DatabaseURL is the Postgres connection string. Empty selects the
	// in-memory store (development only).
	DatabaseURL string

	// NATSURL is the event-bus address. Empty selects the in-process bus.
	NATSURL string

	// LogLevel is debug, info, warn, or error (default "info")
	LogLevel string

	// LogFormat is "json" or "text" (default "text")
	LogFormat string
}

// Load reads configuration from the environment, after loading .env if one
// exists in the working directory.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		BindAddress: getEnv("BIND_ADDRESS", ":8000"),
		Path:        getEnv("GRAPHQL_PATH", "/graphql"),
		Secret:      os.Getenv("SECRET"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		NATSURL:     os.Getenv("NATS_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	ttl := getEnv("TOKEN_TTL", "30m")
	parsed, err := time.ParseDuration(ttl)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", fmt.Sprintf("parse TOKEN_TTL %q", ttl))
	}
	cfg.TokenTTL = parsed

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and applies defaults.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		c.BindAddress = ":8000"
	}
	if c.Path == "" {
		c.Path = "/graphql"
	}
	if c.Path[0] != '/' {
		return errors.Wrap(errors.ErrInvalidConfig, "config", "Validate",
			"GRAPHQL_PATH must start with /")
	}

	if c.Secret == "" {
		return errors.Wrap(errors.ErrMissingConfig, "config", "Validate",
			"SECRET is required")
	}

	if c.TokenTTL <= 0 {
		c.TokenTTL = 30 * time.Minute
	}
	if c.TokenTTL < time.Minute || c.TokenTTL > 24*time.Hour {
		return errors.Wrap(errors.ErrInvalidConfig, "config", "Validate",
			"TOKEN_TTL must be between 1m and 24h")
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Wrap(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown LOG_LEVEL %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "", "json", "text":
	default:
		return errors.Wrap(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

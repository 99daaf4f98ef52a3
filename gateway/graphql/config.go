package graphql

import (
	"fmt"
	"time"

	"github.com/c360/socialgate/errors"
)

// TokenHeader is the request header carrying the opaque session token.
const TokenHeader = "X-Token"

// Config holds configuration for the GraphQL gateway.
type Config struct {
	// BindAddress is the HTTP bind address (default ":8000")
	BindAddress string `json:"bind_address"`

	// Path is the GraphQL endpoint path (default "/graphql")
	Path string `json:"path"`

	// TokenHeader names the session-token header (default "X-Token")
	TokenHeader string `json:"token_header,omitempty"`

	// EnablePlayground enables the GraphQL Playground UI (default true)
	EnablePlayground bool `json:"enable_playground"`

	// EnableCORS enables CORS headers (default true)
	EnableCORS bool `json:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (default ["*"])
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// TimeoutStr is the per-request timeout (default "30s")
	TimeoutStr string `json:"timeout,omitempty"`

	// RateLimit is the sustained requests/second allowed per gateway
	// (default 100; 0 keeps the default, negative disables)
	RateLimit float64 `json:"rate_limit,omitempty"`

	// RateBurst is the burst allowance on top of RateLimit (default 200)
	RateBurst int `json:"rate_burst,omitempty"`

	// timeout is the parsed duration (internal use)
	timeout time.Duration
}

// Validate ensures the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		c.BindAddress = ":8000"
	}
	if c.Path == "" {
		c.Path = "/graphql"
	}
	if c.Path[0] != '/' {
		return errors.Wrap(errors.ErrInvalidConfig, "Config", "Validate",
			"path must start with /")
	}
	if c.TokenHeader == "" {
		c.TokenHeader = TokenHeader
	}

	if c.TimeoutStr == "" {
		c.timeout = 30 * time.Second
	} else {
		timeout, err := time.ParseDuration(c.TimeoutStr)
		if err != nil {
			return errors.Wrap(err, "Config", "Validate",
				fmt.Sprintf("invalid timeout format %q", c.TimeoutStr))
		}
		if timeout < 100*time.Millisecond || timeout > 5*time.Minute {
			return errors.Wrap(errors.ErrInvalidConfig, "Config", "Validate",
				"timeout must be between 100ms and 5m")
		}
		c.timeout = timeout
	}

	if c.RateLimit == 0 {
		c.RateLimit = 100
	}
	if c.RateBurst == 0 {
		c.RateBurst = 200
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}

	return nil
}

// Timeout returns the parsed timeout duration.
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		BindAddress:      ":8000",
		Path:             "/graphql",
		TokenHeader:      TokenHeader,
		EnablePlayground: true,
		EnableCORS:       true,
		CORSOrigins:      []string{"*"},
		TimeoutStr:       "30s",
		RateLimit:        100,
		RateBurst:        200,
	}
}

package catalog

import "time"

const (
	// SourceLegacy selects the relational legacy catalog.
	SourceLegacy = "legacy"
	// SourceREST selects the REST catalog.
	SourceREST = "rest"
)

// Config holds configuration for the upstream catalog.
type Config struct {
	// Source selects the catalog implementation (legacy, rest).
	Source string `mapstructure:"source" default:"legacy"`
	// BaseURL is the root URL of the REST catalog.
	BaseURL string `mapstructure:"base_url" default:"http://localhost:9130"`
	// Tenant is sent with every REST request.
	Tenant string `mapstructure:"tenant" default:""`
	// Token authenticates REST requests.
	Token string `mapstructure:"token" default:""`
	// RateLimit is the sustained number of REST requests per second.
	RateLimit float64 `mapstructure:"rate_limit" default:"10"`
	// Burst is the number of REST requests allowed above the rate.
	Burst int `mapstructure:"burst" default:"5"`
	// Timeout bounds a single REST request.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
	// PageSize is the number of records requested per REST page.
	PageSize int `mapstructure:"page_size" default:"200"`
	// BreakerFailures opens the circuit after this many consecutive failures.
	BreakerFailures uint32 `mapstructure:"breaker_failures" default:"5"`
	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" default:"30s"`
}

// IsValidSource reports whether the configured source is supported.
func (c Config) IsValidSource() bool {
	return c.Source == SourceLegacy || c.Source == SourceREST
}

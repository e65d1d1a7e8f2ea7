package authsdk

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/metrics"
)

// DefaultBaseURL is used when Config.BaseURL is empty.
const DefaultBaseURL = "https://api.authkit.dev"

const defaultTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	// ProjectID identifies the project every call is made for. Required.
	ProjectID string

	// BaseURL of the identity backend. Defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient is copied and its transport wrapped with logging and
	// throttling. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger

	// Unsafe enables logging of values that may carry credentials. Keep it
	// off outside local debugging.
	Unsafe bool

	// RateLimit throttles outgoing calls. The zero value disables it.
	RateLimit httpx.RateLimitConfig

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// LifecycleConfig tunes SessionLifecycle.
type LifecycleConfig struct {
	// Period between refresh checks while foregrounded. Default 30s.
	Period time.Duration

	// AllowedStaleness is how close to expiry a session token may get
	// before it is refreshed. Default 60s.
	AllowedStaleness time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

const (
	DefaultRefreshPeriod    = 30 * time.Second
	DefaultAllowedStaleness = 60 * time.Second
)

func (c LifecycleConfig) withDefaults() LifecycleConfig {
	if c.Period <= 0 {
		c.Period = DefaultRefreshPeriod
	}
	if c.AllowedStaleness <= 0 {
		c.AllowedStaleness = DefaultAllowedStaleness
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

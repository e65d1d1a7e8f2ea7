package authsdk

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// Client performs REST calls against the identity backend for one project.
// It is safe for concurrent use.
type Client struct {
	projectID  string
	baseURL    string
	httpClient *http.Client

	logger  *slog.Logger
	policy  slogx.Policy
	metrics *metrics.Metrics
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, ErrMissingProjectID
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	logger := slogx.OrDiscard(cfg.Logger).With("project_id", cfg.ProjectID)

	hc := &http.Client{Timeout: defaultTimeout}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	hc.Transport = slogx.Transport(
		httpx.RateLimitedTransport(hc.Transport, cfg.RateLimit),
		logger,
		cfg.Metrics.ObserveRequest,
	)

	return &Client{
		projectID:  cfg.ProjectID,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: hc,
		logger:     logger,
		policy:     slogx.Policy{Logger: logger, Unsafe: cfg.Unsafe},
		metrics:    cfg.Metrics,
	}, nil
}

// ProjectID returns the project this client calls on behalf of.
func (c *Client) ProjectID() string { return c.projectID }

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Logger returns the client's logger, scoped to its project.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Metrics returns the collectors passed in Config, possibly nil.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

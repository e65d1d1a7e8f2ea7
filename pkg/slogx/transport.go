package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/idx"
)

// RequestObserver receives the outcome of every request passing through
// Transport. status is 0 when the round trip failed.
type RequestObserver func(path string, status int, elapsed time.Duration)

type loggingTransport struct {
	base    http.RoundTripper
	logger  *slog.Logger
	observe RequestObserver
}

// Transport wraps base so every outgoing request carries an X-Request-ID and
// is logged once it completes. Only method, path, status and timing are
// recorded; headers and bodies carry credentials and are never logged.
func Transport(base http.RoundTripper, logger *slog.Logger, observe RequestObserver) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base, logger: OrDiscard(logger), observe: observe}
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = idx.NewWithPrefix(idx.PrefixRequest).String()
		r = r.Clone(r.Context())
		r.Header.Set("X-Request-ID", reqID)
	}

	logger := t.logger.With(
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
	)

	resp, err := t.base.RoundTrip(r)
	elapsed := time.Since(start)

	if err != nil {
		logger.Warn("http_request_failed", "duration_ms", elapsed.Milliseconds(), "error", err)
		if t.observe != nil {
			t.observe(r.URL.Path, 0, elapsed)
		}
		return nil, err
	}

	logger.Debug("http_request", "status", resp.StatusCode, "duration_ms", elapsed.Milliseconds())
	if t.observe != nil {
		t.observe(r.URL.Path, resp.StatusCode, elapsed)
	}
	return resp, nil
}

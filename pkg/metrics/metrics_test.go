package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.RefreshResult(metrics.ResultRefreshed)
		m.StorageWrite()
		m.FlowRetry()
		m.FlowOutcome("success")
		m.ObserveRequest("/v1/auth/refresh", 200, time.Millisecond)
	})
}

func TestCounters(t *testing.T) {
	_, m := metrics.NewRegistry()

	m.RefreshResult(metrics.ResultRefreshed)
	m.RefreshResult(metrics.ResultRefreshed)
	m.RefreshResult(metrics.ResultError)
	m.StorageWrite()
	m.FlowRetry()
	m.FlowOutcome("cancelled")

	require.InDelta(t, 2, testutil.ToFloat64(m.SessionRefreshes.WithLabelValues(metrics.ResultRefreshed)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.SessionRefreshes.WithLabelValues(metrics.ResultError)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.StorageWrites), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.FlowLoadRetries), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.FlowOutcomes.WithLabelValues("cancelled")), 0)
}

func TestObserveRequest(t *testing.T) {
	_, m := metrics.NewRegistry()

	m.ObserveRequest("/v1/auth/me", 200, 10*time.Millisecond)
	m.ObserveRequest("/v1/auth/me", 0, time.Second)

	require.InDelta(t, 1, testutil.ToFloat64(m.RESTRequests.WithLabelValues("/v1/auth/me", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.RESTRequests.WithLabelValues("/v1/auth/me", "error")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(m.RESTRequestSeconds))
}

func TestHandlerFor(t *testing.T) {
	reg, m := metrics.NewRegistry()
	m.StorageWrite()

	srv := httptest.NewServer(metrics.HandlerFor(reg))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "authkit_session_storage_writes_total 1")
}

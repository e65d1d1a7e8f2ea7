package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the SDK.
const (
	ResultRefreshed = "refreshed"
	ResultSkipped   = "skipped"
	ResultError     = "error"
)

// Metrics holds the SDK's Prometheus collectors. A nil *Metrics is valid and
// records nothing, so callers never need to check before observing.
type Metrics struct {
	SessionRefreshes   *prometheus.CounterVec
	StorageWrites      prometheus.Counter
	FlowLoadRetries    prometheus.Counter
	FlowOutcomes       *prometheus.CounterVec
	RESTRequests       *prometheus.CounterVec
	RESTRequestSeconds *prometheus.HistogramVec
}

// New registers every collector with registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SessionRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkit_session_refresh_total",
				Help: "Session refresh checks by result",
			},
			[]string{"result"},
		),
		StorageWrites: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "authkit_session_storage_writes_total",
				Help: "Writes that reached the backing session store",
			},
		),
		FlowLoadRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "authkit_flow_load_retries_total",
				Help: "Flow page loads retried after a transient failure",
			},
		),
		FlowOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkit_flow_outcomes_total",
				Help: "Terminal flow outcomes",
			},
			[]string{"outcome"},
		),
		RESTRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkit_rest_requests_total",
				Help: "REST calls to the identity backend by path and status",
			},
			[]string{"path", "status"},
		),
		RESTRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authkit_rest_request_duration_seconds",
				Help:    "REST call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"path"},
		),
	}
}

// NewRegistry creates a private registry with the SDK collectors on it.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, New(reg)
}

// HandlerFor returns the /metrics handler for reg.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) RefreshResult(result string) {
	if m == nil {
		return
	}
	m.SessionRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) StorageWrite() {
	if m == nil {
		return
	}
	m.StorageWrites.Inc()
}

func (m *Metrics) FlowRetry() {
	if m == nil {
		return
	}
	m.FlowLoadRetries.Inc()
}

func (m *Metrics) FlowOutcome(outcome string) {
	if m == nil {
		return
	}
	m.FlowOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveRequest matches slogx.RequestObserver. status 0 is recorded as
// "error".
func (m *Metrics) ObserveRequest(path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RESTRequests.WithLabelValues(path, label).Inc()
	m.RESTRequestSeconds.WithLabelValues(path).Observe(elapsed.Seconds())
}

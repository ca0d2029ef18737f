// Package metrics provides Prometheus metrics collection for plater and
// automat.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for one process.
type Metrics struct {
	// HTTP metrics, shared by both binaries.
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// PLATER query metrics, keyed by endpoint kind (hop, node, cypher,
	// trapi, overlay, ...).
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	BackendErrors   prometheus.Counter

	// AUTOMAT proxy/registry metrics.
	ProxyRequestsTotal *prometheus.CounterVec
	RegistrySize       prometheus.Gauge

	ServiceInfo *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// or left unregistered if registerer is nil (used by tests).
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plater_queries_total",
				Help: "Total number of PLATER queries, by endpoint kind",
			},
			[]string{"kind"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plater_query_duration_seconds",
				Help:    "PLATER query duration in seconds, by endpoint kind",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		BackendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "plater_backend_errors_total",
				Help: "Total number of graph database backend errors",
			},
		),

		ProxyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automat_proxy_requests_total",
				Help: "Total number of requests proxied to PLATER backends, by tag and status",
			},
			[]string{"tag", "status"},
		),
		RegistrySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "automat_registry_size",
				Help: "Current number of live backends in the registry",
			},
		),

		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.QueriesTotal,
			m.QueryDuration,
			m.BackendErrors,
			m.ProxyRequestsTotal,
			m.RegistrySize,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName).Set(1)

	return m
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordQuery records a PLATER query dispatched to a given endpoint kind.
func (m *Metrics) RecordQuery(kind string, duration time.Duration) {
	m.QueriesTotal.WithLabelValues(kind).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordBackendError increments the graph database backend error counter.
func (m *Metrics) RecordBackendError() {
	m.BackendErrors.Inc()
}

// RecordProxyRequest records a request AUTOMAT forwarded to a backend tag.
func (m *Metrics) RecordProxyRequest(tag, status string) {
	m.ProxyRequestsTotal.WithLabelValues(tag, status).Inc()
}

// SetRegistrySize sets the current count of live registered backends.
func (m *Metrics) SetRegistrySize(count int) {
	m.RegistrySize.Set(float64(count))
}

// IncrementInFlight increments the in-flight requests gauge.
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests gauge.
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the package-level global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the package-level global metrics instance, initializing a
// fallback if Init has not been called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}

// Package metrics provides Prometheus metrics for the gateway: one counter/
// histogram pair per Z39.50 operation, plus admin-HTTP request metrics for
// the ops surface described in SPEC_FULL.md section 4.10.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors the gateway records against.
type Metrics struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	DiagnosticsTotal   *prometheus.CounterVec
	SessionsActive     prometheus.Gauge
	ConnectionsActive  *prometheus.GaugeVec
	ResultSetsActive   prometheus.Gauge

	AdminRequestsTotal   *prometheus.CounterVec
	AdminRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered against a
// private registry (never the global default, so multiple gateways in one
// process — as in tests — don't collide).
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_operations_total",
			Help: "Total number of Z39.50 operations handled, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_operation_duration_seconds",
			Help:    "Handler latency in seconds, by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	m.DiagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_diagnostics_total",
			Help: "Total BIB-1 diagnostics surfaced to clients, by code.",
		},
		[]string{"code"},
	)

	m.SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sessions_active",
		Help: "Number of live client sessions.",
	})

	m.ConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_connections_active",
			Help: "Number of pooled back-end connections, by database.",
		},
		[]string{"database"},
	)

	m.ResultSetsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_resultsets_active",
		Help: "Number of live named result sets across all sessions.",
	})

	m.AdminRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admin_requests_total",
			Help: "Total requests served by the admin HTTP surface.",
		},
		[]string{"method", "path", "status"},
	)

	m.AdminRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_admin_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.DiagnosticsTotal,
		m.SessionsActive,
		m.ConnectionsActive,
		m.ResultSetsActive,
		m.AdminRequestsTotal,
		m.AdminRequestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler exposes the Prometheus exposition format for the admin surface.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveOperation records one handler invocation's outcome and latency.
func (m *Metrics) ObserveOperation(op, outcome string, d time.Duration) {
	m.OperationsTotal.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveDiagnostic records one BIB-1 diagnostic surfaced to a client.
func (m *Metrics) ObserveDiagnostic(code int) {
	m.DiagnosticsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Middleware instruments the admin HTTP surface.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		m.AdminRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.AdminRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

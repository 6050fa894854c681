package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the BFF.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// List operation metrics
	ListOperationsTotal  *prometheus.CounterVec
	ListOperationErrors  *prometheus.CounterVec
	ListFetchDuration    *prometheus.HistogramVec

	// Backend metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
	BackendRetriesTotal        prometheus.Counter

	// Cache and session metrics
	DashboardCacheHitsTotal   prometheus.Counter
	DashboardCacheMissesTotal prometheus.Counter
	ActiveSessions            prometheus.Gauge
	IdempotentReplaysTotal    *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billtrack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billtrack_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billtrack_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// List operations
		ListOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_list_operations_total",
			Help: "Total number of list controller operations.",
		}, []string{"entity", "operation", "outcome"}),
		ListOperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_list_operation_errors_total",
			Help: "Total number of list controller operations that surfaced an error.",
		}, []string{"entity", "operation"}),
		ListFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billtrack_list_fetch_duration_seconds",
			Help:    "List fetch duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"entity"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_backend_requests_total",
			Help: "Total number of billing backend requests.",
		}, []string{"method", "resource", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billtrack_backend_request_duration_seconds",
			Help:    "Billing backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"resource"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "billtrack_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BackendRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_backend_retries_total",
			Help: "Total number of billing backend request retries.",
		}),

		// Cache and sessions
		DashboardCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_dashboard_cache_hits_total",
			Help: "Total dashboard overview cache hits.",
		}),
		DashboardCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_dashboard_cache_misses_total",
			Help: "Total dashboard overview cache misses.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "billtrack_active_sessions",
			Help: "Number of live per-user controller sessions.",
		}),
		IdempotentReplaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_idempotent_replays_total",
			Help: "Total mutations answered from the idempotency store.",
		}, []string{"resource"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// List operations
		m.ListOperationsTotal,
		m.ListOperationErrors,
		m.ListFetchDuration,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		// Cache and sessions
		m.DashboardCacheHitsTotal,
		m.DashboardCacheMissesTotal,
		m.ActiveSessions,
		m.IdempotentReplaysTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordListOperation records one list controller operation and its outcome.
func (m *Metrics) RecordListOperation(entity, operation string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "error"
		m.ListOperationErrors.WithLabelValues(entity, operation).Inc()
	}
	m.ListOperationsTotal.WithLabelValues(entity, operation, outcome).Inc()
}

// RecordListFetchDuration records the duration of a list fetch.
func (m *Metrics) RecordListFetchDuration(entity string, duration time.Duration) {
	m.ListFetchDuration.WithLabelValues(entity).Observe(duration.Seconds())
}

// RecordBackendRequest records a billing backend request.
func (m *Metrics) RecordBackendRequest(method, resource string, status int, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the breaker gauge.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	m.BackendCircuitBreakerState.Set(state)
}

// RecordBackendRetry records a backend request retry.
func (m *Metrics) RecordBackendRetry() {
	m.BackendRetriesTotal.Inc()
}

// RecordDashboardCacheHit records a dashboard overview cache hit.
func (m *Metrics) RecordDashboardCacheHit() {
	m.DashboardCacheHitsTotal.Inc()
}

// RecordDashboardCacheMiss records a dashboard overview cache miss.
func (m *Metrics) RecordDashboardCacheMiss() {
	m.DashboardCacheMissesTotal.Inc()
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(count float64) {
	m.ActiveSessions.Set(count)
}

// RecordIdempotentReplay records a mutation answered from the idempotency store.
func (m *Metrics) RecordIdempotentReplay(resource string) {
	m.IdempotentReplaysTotal.WithLabelValues(resource).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal     *prometheus.CounterVec
	uploadBytes      *prometheus.HistogramVec
	authzDeniedTotal *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Upload attempts by document type and outcome.",
		},
		[]string{"service", "type", "outcome"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "documents",
			Name:      "upload_bytes",
			Help:      "Size of accepted uploads in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"service", "type"},
	)
	authzDeniedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "authz",
			Name:      "denied_total",
			Help:      "Requests rejected by the authorization matrix.",
		},
		[]string{"service", "operation", "reason"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control before reaching a handler.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		uploadBytes,
		authzDeniedTotal,
		rateLimitedTotal,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		uploadsTotal:     uploadsTotal,
		uploadBytes:      uploadBytes,
		authzDeniedTotal: authzDeniedTotal,
		rateLimitedTotal: rateLimitedTotal,
	}
}

// Registry lets other collectors of the same process share the /metrics endpoint.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler also serves the default gatherer, which carries the process collectors
// and package-level counters such as the role override cache.
func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

// Middleware must run inside the chi router so the matched route pattern is known.
func (m *HTTPServerMetrics) Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			m.requestInFlight.Inc()
			defer m.requestInFlight.Dec()

			next.ServeHTTP(recorder, r)

			path := routePattern(r)
			m.requestTotal.WithLabelValues(
				service,
				r.Method,
				path,
				strconv.Itoa(recorder.statusCode),
			).Inc()
			m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/documents/detail/"):
		return "/api/documents/detail/{id}"
	case strings.HasPrefix(path, "/api/users/"):
		return "/api/users/{id}/role"
	case strings.HasPrefix(path, "/api/documents/"):
		return "/api/documents/{type}"
	default:
		return "other"
	}
}

func (m *HTTPServerMetrics) RecordUpload(service, docType, outcome string, size int64) {
	if docType == "" {
		docType = "unknown"
	}
	m.uploadsTotal.WithLabelValues(service, docType, outcome).Inc()
	if outcome == "accepted" && size > 0 {
		m.uploadBytes.WithLabelValues(service, docType).Observe(float64(size))
	}
}

func (m *HTTPServerMetrics) RecordDenied(service, operation, reason string) {
	m.authzDeniedTotal.WithLabelValues(service, operation, reason).Inc()
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.rateLimitedTotal.WithLabelValues(service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

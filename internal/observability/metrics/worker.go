package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

// PhaseMetrics observes document phase transitions. It satisfies
// usecase.TransitionObserver and can share a registry with the HTTP metrics
// when the api process runs the local scheduler.
type PhaseMetrics struct {
	registry *prometheus.Registry
	service  string

	transitionsTotal  *prometheus.CounterVec
	sinceCreated      *prometheus.HistogramVec
	chainsInFlight    prometheus.Gauge
	breakerTransition *prometheus.CounterVec
}

func NewPhaseMetrics(service string, registry *prometheus.Registry) *PhaseMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "phase",
			Name:      "transitions_total",
			Help:      "Committed document status transitions.",
		},
		[]string{"service", "from", "to"},
	)
	sinceCreated := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "phase",
			Name:      "since_upload_seconds",
			Help:      "Time between document creation and reaching a status.",
			Buckets:   []float64{0.5, 1, 2, 4, 6, 10, 30, 60, 120, 300},
		},
		[]string{"service", "to"},
	)
	chainsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "portal",
			Subsystem: "phase",
			Name:      "chains_in_flight",
			Help:      "Number of documents currently advanced by a phase runner.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	breakerTransition := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes by operation.",
		},
		[]string{"service", "operation", "to"},
	)

	registry.MustRegister(transitionsTotal, sinceCreated, chainsInFlight, breakerTransition)

	return &PhaseMetrics{
		registry:          registry,
		service:           service,
		transitionsTotal:  transitionsTotal,
		sinceCreated:      sinceCreated,
		chainsInFlight:    chainsInFlight,
		breakerTransition: breakerTransition,
	}
}

func (m *PhaseMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

func (m *PhaseMetrics) ObserveTransition(from, to domain.DocumentStatus, sinceCreated time.Duration) {
	m.transitionsTotal.WithLabelValues(m.service, string(from), string(to)).Inc()
	if sinceCreated >= 0 {
		m.sinceCreated.WithLabelValues(m.service, string(to)).Observe(sinceCreated.Seconds())
	}
	switch {
	case from == domain.StatusUploading && to == domain.StatusProcessing:
		m.chainsInFlight.Inc()
	case from == domain.StatusProcessing && to.Terminal():
		m.chainsInFlight.Dec()
	}
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *PhaseMetrics) ObserveBreakerState(operation, _ string, to string) {
	m.breakerTransition.WithLabelValues(m.service, operation, to).Inc()
}

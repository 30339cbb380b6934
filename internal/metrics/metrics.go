// package metrics defines the prometheus collectors of the directory: source calls, registry reloads
// and circuit breakers
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dird"

// Outcomes of a source call.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeRejected = "rejected"
)

// Metrics groups the collectors. Create it once per registerer.
type Metrics struct {
	SourceRequests     *prometheus.CounterVec
	SourceDuration     *prometheus.HistogramVec
	SourceLoadFailures *prometheus.CounterVec
	RegistryGeneration prometheus.Gauge
	LoadedSources      prometheus.Gauge
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SourceRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_requests_total",
				Help:      "Source calls by source, backend, operation and outcome",
			},
			[]string{"source", "backend", "operation", "outcome"},
		),
		SourceDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_request_duration_seconds",
				Help:      "Duration of source calls",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"source", "backend", "operation"},
		),
		SourceLoadFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_load_failures_total",
				Help:      "Sources that failed to load, by backend",
			},
			[]string{"backend"},
		),
		RegistryGeneration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_generation",
			Help:      "Number of the source registry generation in use",
		}),
		LoadedSources: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_loaded_sources",
			Help:      "Sources loaded in the current registry generation",
		}),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"source"},
		),
		BreakerTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_transitions_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"source", "from", "to"},
		),
	}
}

// NewNop returns collectors registered nowhere, for tests and tools that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveSource records one source call.
func (m *Metrics) ObserveSource(source, backend, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceRequests.WithLabelValues(source, backend, operation, outcome).Inc()
	m.SourceDuration.WithLabelValues(source, backend, operation).Observe(d.Seconds())
}

// ObserveGeneration records a published registry generation.
func (m *Metrics) ObserveGeneration(number uint64, loaded int) {
	if m == nil {
		return
	}
	m.RegistryGeneration.Set(float64(number))
	m.LoadedSources.Set(float64(loaded))
}

// SourceLoadFailed counts a source that could not be constructed.
func (m *Metrics) SourceLoadFailed(backend string) {
	if m == nil {
		return
	}
	m.SourceLoadFailures.WithLabelValues(backend).Inc()
}

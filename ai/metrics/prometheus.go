// Package metrics provides Prometheus metrics export for the request
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports pipeline metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Turn metrics
	turnLatency *prometheus.HistogramVec
	turns       *prometheus.CounterVec

	// Stage latency (classify, delegate, validate)
	stageLatency *prometheus.HistogramVec

	// Response cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Token accounting
	tokensUsed *prometheus.CounterVec

	// Agent errors and validation fallbacks
	agentErrors         *prometheus.CounterVec
	validationFallbacks prometheus.Counter
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "civicsense",
			Subsystem: "orchestrator",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"intent", "state"},
	)

	e.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsense",
			Subsystem: "orchestrator",
			Name:      "turns_total",
			Help:      "Total turns by intent and terminal state",
		},
		[]string{"intent", "state"},
	)

	e.stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "civicsense",
			Subsystem: "orchestrator",
			Name:      "stage_latency_seconds",
			Help:      "Per-stage latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"stage"},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsense",
			Subsystem: "orchestrator",
			Name:      "cache_hits_total",
			Help:      "Total response cache hits",
		},
		[]string{"intent"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsense",
			Subsystem: "orchestrator",
			Name:      "cache_misses_total",
			Help:      "Total response cache misses",
		},
		[]string{"intent"},
	)

	e.tokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsense",
			Subsystem: "orchestrator",
			Name:      "tokens_total",
			Help:      "Total generation tokens consumed",
		},
		[]string{"agent"},
	)

	e.agentErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsense",
			Subsystem: "orchestrator",
			Name:      "agent_errors_total",
			Help:      "Total agent errors by kind",
		},
		[]string{"agent", "kind"},
	)

	e.validationFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "civicsense",
			Subsystem: "orchestrator",
			Name:      "validation_fallbacks_total",
			Help:      "Turns that exhausted the regeneration budget",
		},
	)

	registry.MustRegister(
		e.turnLatency,
		e.turns,
		e.stageLatency,
		e.cacheHits,
		e.cacheMisses,
		e.tokensUsed,
		e.agentErrors,
		e.validationFallbacks,
	)

	return e
}

// RecordTurn records a completed turn.
func (e *PrometheusExporter) RecordTurn(intent, state string, latency time.Duration) {
	e.turns.WithLabelValues(intent, state).Inc()
	e.turnLatency.WithLabelValues(intent, state).Observe(latency.Seconds())
}

// RecordStage records one pipeline stage's latency.
func (e *PrometheusExporter) RecordStage(stage string, latency time.Duration) {
	e.stageLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

// RecordCacheHit records a response cache hit.
func (e *PrometheusExporter) RecordCacheHit(intent string) {
	e.cacheHits.WithLabelValues(intent).Inc()
}

// RecordCacheMiss records a response cache miss.
func (e *PrometheusExporter) RecordCacheMiss(intent string) {
	e.cacheMisses.WithLabelValues(intent).Inc()
}

// RecordTokens records generation tokens attributed to an agent.
func (e *PrometheusExporter) RecordTokens(agent string, count int) {
	if count > 0 {
		e.tokensUsed.WithLabelValues(agent).Add(float64(count))
	}
}

// RecordAgentError records an agent error by kind.
func (e *PrometheusExporter) RecordAgentError(agent, kind string) {
	e.agentErrors.WithLabelValues(agent, kind).Inc()
}

// RecordValidationFallback records an exhausted regeneration budget.
func (e *PrometheusExporter) RecordValidationFallback() {
	e.validationFallbacks.Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

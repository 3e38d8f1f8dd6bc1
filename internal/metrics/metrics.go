// Package metrics exposes Prometheus instrumentation for request analysis.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lunar_mcp"

// Analysis paths, used as the "path" label.
const (
	PathChain    = "chain"
	PathJumpCode = "jump_code"
	PathCache    = "cache"
	PathComputed = "computed"
)

// Metrics holds the collectors. Each Metrics owns its registry so that
// several engines (and tests) do not collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	AnalyzeTotal    *prometheus.CounterVec
	AnalyzeDuration prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
	ChainExecutions *prometheus.CounterVec
	ChainSteps      prometheus.Histogram
	UsageLogged     prometheus.Counter
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AnalyzeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyze_requests_total",
				Help:      "Analyzed requests by resolution path.",
			},
			[]string{"path"},
		),
		AnalyzeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analyze_duration_seconds",
				Help:      "Time to analyze one request.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Suggestion cache lookups by result (exact, similar, miss).",
			},
			[]string{"result"},
		),
		ChainExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_executions_total",
				Help:      "Chain executions by terminal status.",
			},
			[]string{"status"},
		),
		ChainSteps: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chain_steps",
				Help:      "Steps attempted per chain execution.",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		UsageLogged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_records_total",
				Help:      "Usage records logged by the pattern learner.",
			},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAnalyze counts one analysis on path and records its duration.
// Safe to call on a nil *Metrics.
func (m *Metrics) ObserveAnalyze(path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AnalyzeTotal.WithLabelValues(path).Inc()
	m.AnalyzeDuration.Observe(elapsed.Seconds())
}

// ObserveCache counts one cache lookup result: exact, similar or miss.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveChain counts one chain execution.
func (m *Metrics) ObserveChain(status string, steps int) {
	if m == nil {
		return
	}
	m.ChainExecutions.WithLabelValues(status).Inc()
	m.ChainSteps.Observe(float64(steps))
}

// ObserveUsage counts one usage record.
func (m *Metrics) ObserveUsage() {
	if m == nil {
		return
	}
	m.UsageLogged.Inc()
}

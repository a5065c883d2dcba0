package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Outcomes of a single normalization.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeInvalid = "invalid"
)

// Cache tiers and lookup results.
const (
	TierMemory = "memory"
	TierStore  = "store"
	ResultHit  = "hit"
	ResultMiss = "miss"
	ResultErr  = "error"
)

// Metrics holds the collectors on a private registry, so tests and several
// pipelines in one process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	normalizedTotal  *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	normalizeSeconds prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		normalizedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngprep_normalized_total",
				Help: "Total number of normalized texts by outcome",
			},
			[]string{"outcome"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngprep_cache_lookups_total",
				Help: "Cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		normalizeSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ngprep_normalize_duration_seconds",
				Help:    "Time spent normalizing one text, cache lookups included",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
		),
	}
	m.registry.MustRegister(
		m.normalizedTotal,
		m.cacheLookups,
		m.normalizeSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordNormalized counts one result. Nil receivers are no-ops.
func (m *Metrics) RecordNormalized(outcome string) {
	if m == nil {
		return
	}
	m.normalizedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCacheLookup(tier, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tier, result).Inc()
}

// StartNormalize returns a function observing the elapsed time when called.
func (m *Metrics) StartNormalize() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.normalizeSeconds.Observe(time.Since(start).Seconds())
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// InitTracing installs a global tracer provider and returns its shutdown func.
func InitTracing() func(ctx context.Context) error {
	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// NewAccessLogger builds the JSON logger used for HTTP access logs.
func NewAccessLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

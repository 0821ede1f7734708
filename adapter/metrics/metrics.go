// Package metrics exposes collection and cache activity as Prometheus
// metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace       = "godm"
	collectionLabel = "collection"
	operationLabel  = "operation"
	resultLabel     = "result"
	kindLabel       = "kind"
)

// Metrics records collection operations and cache lookups. It implements
// [domain.CacheObserver].
type Metrics struct {
	registry prometheus.Registerer

	operationsTotal  *prometheus.CounterVec
	operationSeconds *prometheus.HistogramVec
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
}

// NewMetrics registers the metrics on reg. A nil reg uses a new private
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		registry: reg,
		operationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "operations_total",
			Help:      "The total number of collection operations, by result.",
		}, []string{collectionLabel, operationLabel, resultLabel}),
		operationSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "operation_seconds",
			Help:      "The time spent in collection operations, backend included.",
		}, []string{collectionLabel, operationLabel}),
		cacheHitsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "The total number of deserialization cache hits.",
		}, []string{kindLabel}),
		cacheMissesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "The total number of deserialization cache misses.",
		}, []string{kindLabel}),
	}
}

// Registry returns the registerer the metrics were added to.
func (m *Metrics) Registry() prometheus.Registerer {
	return m.registry
}

// ObserveOperation records an operation that started at start and ended with
// err.
func (m *Metrics) ObserveOperation(collection, operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.operationsTotal.With(prometheus.Labels{
		collectionLabel: collection,
		operationLabel:  operation,
		resultLabel:     result,
	}).Inc()
	m.operationSeconds.With(prometheus.Labels{
		collectionLabel: collection,
		operationLabel:  operation,
	}).Observe(time.Since(start).Seconds())
}

// CacheHit implements [domain.CacheObserver].
func (m *Metrics) CacheHit(kind string) {
	m.cacheHitsTotal.With(prometheus.Labels{kindLabel: kind}).Inc()
}

// CacheMiss implements [domain.CacheObserver].
func (m *Metrics) CacheMiss(kind string) {
	m.cacheMissesTotal.With(prometheus.Labels{kindLabel: kind}).Inc()
}

package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics of the store: query traffic,
// stage connectivity and structure cache refreshes. Component-specific
// metrics are registered separately through the MetricsRegistrar interface.
type Metrics struct {
	StoreStatus        *prometheus.GaugeVec
	QueriesTotal       *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	DocumentsRead      *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec
	StructureRefreshes *prometheus.CounterVec
	DeferredEvictions  prometheus.Gauge
}

// NewMetrics creates the platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		StoreStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kgraph",
				Subsystem: "store",
				Name:      "status",
				Help:      "Stage database connectivity (0=down, 1=up)",
			},
			[]string{"stage"},
		),

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kgraph",
				Subsystem: "queries",
				Name:      "total",
				Help:      "Total number of queries executed",
			},
			[]string{"stage", "repository"},
		),

		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kgraph",
				Subsystem: "queries",
				Name:      "duration_seconds",
				Help:      "Query execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "repository"},
		),

		DocumentsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kgraph",
				Subsystem: "documents",
				Name:      "read_total",
				Help:      "Total number of documents returned to callers",
			},
			[]string{"stage"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kgraph",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and class",
			},
			[]string{"component", "class"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kgraph",
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		StructureRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kgraph",
				Subsystem: "structure",
				Name:      "refreshes_total",
				Help:      "Total number of structure cache refreshes",
			},
			[]string{"cache"},
		),

		DeferredEvictions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kgraph",
				Subsystem: "structure",
				Name:      "deferred_evictions",
				Help:      "Number of cache evictions currently deferred",
			},
		),
	}
}

// RecordStoreStatus records stage database connectivity.
func (c *Metrics) RecordStoreStatus(stage string, up bool) {
	value := 0.0
	if up {
		value = 1.0
	}
	c.StoreStatus.WithLabelValues(stage).Set(value)
}

// RecordQuery records one executed query and its duration.
func (c *Metrics) RecordQuery(stage, repository string, duration time.Duration) {
	c.QueriesTotal.WithLabelValues(stage, repository).Inc()
	c.QueryDuration.WithLabelValues(stage, repository).Observe(duration.Seconds())
}

// RecordDocumentsRead records documents returned to a caller.
func (c *Metrics) RecordDocumentsRead(stage string, count int) {
	c.DocumentsRead.WithLabelValues(stage).Add(float64(count))
}

// RecordError records an error occurrence.
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordHealthStatus records a health check outcome.
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordStructureRefresh records one structure cache refresh.
func (c *Metrics) RecordStructureRefresh(cache string) {
	c.StructureRefreshes.WithLabelValues(cache).Inc()
}

// RecordDeferredEvictions records the current deferred eviction backlog.
func (c *Metrics) RecordDeferredEvictions(count int) {
	c.DeferredEvictions.Set(float64(count))
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncCyclesTotal counts synchronization cycles by outcome
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_sync_cycles_total",
			Help: "Total number of synchronization cycles",
		},
		[]string{"status"},
	)

	// SyncDuration tracks how long a full cycle takes, retries included
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "etl_sync_duration_seconds",
			Help:    "Synchronization cycle duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	// ChangedEntities counts ids routed to each entity type by change detection
	ChangedEntities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_changed_entities_total",
			Help: "Total number of entities detected as changed, fan-out included",
		},
		[]string{"entity"},
	)

	// DocumentsIndexed counts documents upserted into the search index
	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_documents_indexed_total",
			Help: "Total number of documents written to the search index",
		},
		[]string{"index"},
	)

	// RetryAttempts counts failed attempts that were retried
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_retry_attempts_total",
			Help: "Total number of failed attempts retried with backoff",
		},
		[]string{"operation"},
	)

	// Watermark tracks the persisted watermark per entity type as a unix timestamp
	Watermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "etl_watermark_timestamp_seconds",
			Help: "Last synchronized updated_at per entity type",
		},
		[]string{"entity"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

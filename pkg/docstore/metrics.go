// Package docstore provides Prometheus metrics for store monitoring.
package docstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: op (upsert, remove, search, hybrid_search, load, save,
	// reindex, import, export), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecstore",
			Subsystem: "docstore",
			Name:      "operations_total",
			Help:      "Total number of document store operations",
		},
		[]string{"op", "result"},
	)

	// SearchDuration tracks similarity and hybrid search latency.
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vecstore",
			Subsystem: "docstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of search operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// DocumentsTotal is the current in-memory document count.
	DocumentsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vecstore",
			Subsystem: "docstore",
			Name:      "documents_total",
			Help:      "Current number of documents held in memory",
		},
	)

	// EmbeddingsGenerated counts vectors obtained from the provider.
	EmbeddingsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vecstore",
			Subsystem: "docstore",
			Name:      "embeddings_generated_total",
			Help:      "Total number of embeddings generated by the provider",
		},
	)

	// CacheLookups counts embedding cache lookups during upsert.
	// Labels: result (hit, miss)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecstore",
			Subsystem: "docstore",
			Name:      "cache_lookups_total",
			Help:      "Total number of embedding cache lookups",
		},
		[]string{"result"},
	)
)

// recordOp records the outcome of a store operation.
func recordOp(op string, err error) {
	if err != nil {
		OperationsTotal.WithLabelValues(op, "error").Inc()
		return
	}
	OperationsTotal.WithLabelValues(op, "success").Inc()
}

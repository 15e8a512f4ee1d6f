// Package metrics provides Prometheus metrics for the Sift dataset server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sift"

var (
	// QueryConcurrency tracks per-dataset concurrent query execution.
	QueryConcurrency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "query_concurrency",
			Help:      "Number of concurrent queries per dataset",
		},
		[]string{"dataset"},
	)

	// DatasetRows tracks the number of rows per loaded dataset.
	DatasetRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Number of rows per loaded dataset",
		},
		[]string{"dataset"},
	)

	// CacheHits tracks result cache hits per dataset.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total result cache hits",
		},
		[]string{"dataset"},
	)

	// CacheMisses tracks result cache misses per dataset.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total result cache misses",
		},
		[]string{"dataset"},
	)

	// ObjectStoreOps tracks object store operations.
	ObjectStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objectstore_ops_total",
			Help:      "Total object store operations",
		},
		[]string{"operation", "status"}, // operation: get/put/delete/list, status: success/error
	)

	// ObjectStoreLatency tracks object store operation latency.
	ObjectStoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "objectstore_latency_seconds",
			Help:      "Object store operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// QueriesTotal tracks total queries executed.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total queries executed",
		},
		[]string{"dataset", "query_type", "status"}, // query_type: select_rows/select_groups/stats
	)

	// QueryLatency tracks query execution latency.
	QueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_latency_seconds",
			Help:      "Query execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"dataset", "query_type"},
	)

	// TasksTotal tracks background task completions by kind and status.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total background tasks by terminal status",
		},
		[]string{"kind", "status"}, // kind: compute_signal/compute_embedding_index/..., status: completed/error
	)

	// TaskDuration tracks background task wall time.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Background task duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"kind"},
	)

	// SignalRowsComputed tracks values produced by signal computations.
	SignalRowsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_values_computed_total",
			Help:      "Total values produced by signal computations",
		},
		[]string{"signal"},
	)
)

// IncQueryConcurrency increments the query concurrency gauge for a dataset.
func IncQueryConcurrency(dataset string) {
	QueryConcurrency.WithLabelValues(dataset).Inc()
}

// DecQueryConcurrency decrements the query concurrency gauge for a dataset.
func DecQueryConcurrency(dataset string) {
	QueryConcurrency.WithLabelValues(dataset).Dec()
}

// SetDatasetRows sets the row count gauge for a dataset.
func SetDatasetRows(dataset string, rows int) {
	DatasetRows.WithLabelValues(dataset).Set(float64(rows))
}

// IncCacheHit increments the result cache hit counter.
func IncCacheHit(dataset string) {
	CacheHits.WithLabelValues(dataset).Inc()
}

// IncCacheMiss increments the result cache miss counter.
func IncCacheMiss(dataset string) {
	CacheMisses.WithLabelValues(dataset).Inc()
}

// ObserveObjectStoreOp records an object store operation.
func ObserveObjectStoreOp(operation string, latencySeconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ObjectStoreOps.WithLabelValues(operation, status).Inc()
	ObjectStoreLatency.WithLabelValues(operation).Observe(latencySeconds)
}

// ObserveQuery records a query execution.
func ObserveQuery(dataset, queryType string, latencySeconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	QueriesTotal.WithLabelValues(dataset, queryType, status).Inc()
	QueryLatency.WithLabelValues(dataset, queryType).Observe(latencySeconds)
}

// ObserveTask records a background task reaching a terminal state.
func ObserveTask(kind, status string, durationSeconds float64) {
	TasksTotal.WithLabelValues(kind, status).Inc()
	TaskDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// AddSignalValues records values produced by a signal computation.
func AddSignalValues(signal string, n int) {
	SignalRowsComputed.WithLabelValues(signal).Add(float64(n))
}

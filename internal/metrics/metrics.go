// Package metrics exposes Prometheus instruments for the ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_api_requests_total",
			Help: "Total remote document API requests, labeled by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	apiRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_api_retries_total",
			Help: "Total retry attempts against the remote document API.",
		},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_cache_ops_total",
			Help: "Cache lookups, labeled by cache name and hit/miss.",
		},
		[]string{"cache", "result"},
	)

	blocksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_blocks_processed_total",
			Help: "Content blocks processed, labeled by block kind.",
		},
		[]string{"kind"},
	)

	nodesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_nodes_created_total",
			Help: "Graph nodes emitted, labeled by node type.",
		},
		[]string{"type"},
	)

	runDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "End-to-end duration of ingestion runs.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)
)

// ObserveAPIRequest records one remote API call.
func ObserveAPIRequest(method, outcome string) {
	apiRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveRetry records one retry attempt.
func ObserveRetry() {
	apiRetriesTotal.Inc()
}

// ObserveCache records a cache lookup result.
func ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheOpsTotal.WithLabelValues(cache, result).Inc()
}

// ObserveBlock records one processed block.
func ObserveBlock(kind string) {
	blocksProcessedTotal.WithLabelValues(kind).Inc()
}

// ObserveNode records one emitted graph node.
func ObserveNode(nodeType string) {
	nodesCreatedTotal.WithLabelValues(nodeType).Inc()
}

// ObserveRunDuration records the duration of a completed run.
func ObserveRunDuration(d time.Duration) {
	runDurationSeconds.Observe(d.Seconds())
}

package redissource

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hits counts queries answered from a materialized list.
	Hits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statsloader_redis_source_hits_total",
			Help: "Total number of queries answered from a materialized result set",
		},
	)

	// Misses counts queries for result sets that were never materialized or expired.
	Misses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statsloader_redis_source_misses_total",
			Help: "Total number of queries for result sets that are not materialized",
		},
	)

	// RecordsWritten counts records pushed by Store and Append.
	RecordsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statsloader_redis_source_records_written_total",
			Help: "Total number of records written to materialized result sets",
		},
	)

	// Errors tracks Redis operation errors
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsloader_redis_source_errors_total",
			Help: "Total number of Redis source operation errors",
		},
		[]string{"operation"}, // "query", "store", "append", "commit", "abort", "delete", "len"
	)
)

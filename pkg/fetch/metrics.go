package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for batch fetches.
var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statsloader_fetch_total",
		Help: "Total batch fetches by namespace and outcome",
	}, []string{"namespace", "outcome"}) // "ok", "timeout", "transport", "cancelled"

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statsloader_fetch_duration_seconds",
		Help:    "Batch fetch duration in seconds by namespace, excluding gate wait",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"namespace"})

	fetchRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statsloader_fetch_records_total",
		Help: "Total records received from the source by namespace",
	}, []string{"namespace"})
)

// Package metrics exposes the Prometheus registry used by the loader.
// Metrics are defined in their respective packages (gate, fetch, window,
// loader, retry, source) and registered via promauto; this package serves
// them and documents what exists.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry all metrics register with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Admission Metrics (pkg/gate):
//   - statsloader_gate_in_flight (Gauge): Batch requests currently holding a permit
//   - statsloader_gate_wait_seconds (Histogram): Time spent waiting for a permit
//
// Fetch Metrics (pkg/fetch):
//   - statsloader_fetch_total{namespace, outcome} (Counter): Batch fetches by outcome (ok, timeout, transport, cancelled)
//   - statsloader_fetch_duration_seconds{namespace} (Histogram): Batch fetch duration
//   - statsloader_fetch_records_total{namespace} (Counter): Records returned by the source
//
// Window Metrics (pkg/window):
//   - statsloader_window_evictions_total (Counter): Batches evicted from windows
//   - statsloader_window_entries (Gauge): Live window entries
//
// Loader Metrics (pkg/loader):
//   - statsloader_load_more_total{result} (Counter): LoadMore calls by result (fetched, busy, complete, capacity, error, cancelled)
//
// Retry Metrics (pkg/retry):
//   - statsloader_retries_total{error_kind} (Counter): Retry attempts by fetch error kind
//   - statsloader_retry_exhausted_total{error_kind} (Counter): Loads that exhausted their attempts
//
// Source Metrics (pkg/source/httpsource, pkg/source/redissource):
//   - statsloader_source_requests_total{namespace, status} (Counter): HTTP source requests by status
//   - statsloader_source_request_duration_seconds{namespace} (Histogram): HTTP source request duration
//   - statsloader_redis_source_hits_total (Counter): Queries answered from a materialized set
//   - statsloader_redis_source_misses_total (Counter): Queries for sets that are not materialized
//   - statsloader_redis_source_records_written_total (Counter): Records written by Store and Append
//   - statsloader_redis_source_errors_total{operation} (Counter): Redis operation errors
//
// Example Prometheus Queries:
//
//   # Batch fetch error rate
//   sum(rate(statsloader_fetch_total{outcome!="ok"}[5m])) / sum(rate(statsloader_fetch_total[5m]))
//
//   # Admission saturation
//   statsloader_gate_in_flight
//
//   # P95 permit wait
//   histogram_quantile(0.95, rate(statsloader_gate_wait_seconds_bucket[5m]))
//
//   # P95 batch latency
//   histogram_quantile(0.95, rate(statsloader_fetch_duration_seconds_bucket[5m]))

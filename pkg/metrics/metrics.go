// Package metrics documents the Prometheus metrics exposed by marketsync.
// All metrics are defined in their respective packages (client, ratelimit,
// cache, reconcile) via promauto to keep registration next to use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by marketsync.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Transport Metrics (pkg/client):
//   - marketsync_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - marketsync_request_duration_seconds{endpoint} (Histogram): Request duration
//   - marketsync_outcomes_total{class} (Counter): Outcomes by class (success, rate_limited, hard_error, transport_error)
//
// Retry Metrics (pkg/client):
//   - marketsync_retries_total{kind} (Counter): Rate-limit retries by endpoint kind
//   - marketsync_retry_backoff_seconds{kind} (Histogram): Backoff durations
//   - marketsync_retry_exhausted_total{kind} (Counter): Retry budget exhaustions
//
// Pacing Metrics (pkg/ratelimit):
//   - marketsync_pace_waits_total (Counter): Requests that waited for the inter-request interval
//   - marketsync_pace_wait_seconds (Histogram): Time spent pacing
//
// Cache Metrics (pkg/cache):
//   - marketsync_value_cache_hits_total (Counter): Detail fetches answered from cache
//   - marketsync_value_cache_misses_total (Counter): Value cache misses
//   - marketsync_defers_recorded_total (Counter): Ids deferred after failures
//   - marketsync_defers_honored_total (Counter): Fetches skipped inside a skip window
//
// Merge Metrics (pkg/reconcile):
//   - marketsync_merge_rows_appended_total (Counter): New store rows from merges
//   - marketsync_merge_cells_written_total (Counter): Cells written by merges
//
// Example Prometheus Queries:
//
//   # Share of detail fetches avoided by the value cache
//   rate(marketsync_value_cache_hits_total[1h]) /
//   (rate(marketsync_value_cache_hits_total[1h]) + rate(marketsync_value_cache_misses_total[1h]))
//
//   # Rate-limit pressure
//   rate(marketsync_outcomes_total{class="rate_limited"}[1h])
//
//   # Store growth
//   increase(marketsync_merge_rows_appended_total[24h])

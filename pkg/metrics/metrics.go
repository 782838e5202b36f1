// Package metrics provides the centralized Prometheus registry for the
// ai-nav-item service. All metrics are defined in their owning packages
// (batch, enrich, icon, web) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Batch Engine Metrics (pkg/batch):
//   - ainav_batch_windows_total{result} (Counter): Settled windows by classification
//     (clean, rate_limited, mixed)
//   - ainav_batch_concurrency (Gauge): Current adaptive concurrency level
//   - ainav_batch_items_total{status} (Counter): Settled items (success, partial, failed)
//   - ainav_batch_rate_limit_events_total (Counter): Windows that observed a throttle signal
//   - ainav_batch_delay_seconds (Histogram): Inter-batch pacing delay
//   - ainav_batch_tasks_total{outcome} (Counter): Finished tasks (completed, stopped, failed)
//
// Retry Metrics (pkg/batch):
//   - ainav_item_retries_total (Counter): Per-item retry attempts after 429 classification
//   - ainav_item_retry_backoff_seconds (Histogram): Backoff slept before per-item retries
//   - ainav_item_retry_exhausted_total (Counter): Items that exhausted their retries
//
// Provider Metrics (internal/enrich):
//   - ainav_provider_requests_total{result} (Counter): Upstream completion requests
//     (ok, throttled, error)
//   - ainav_provider_request_duration_seconds (Histogram): Provider request latency
//
// Icon Cache Metrics (internal/icon):
//   - ainav_icon_cache_hits_total (Counter): Icon cache hits
//   - ainav_icon_cache_misses_total (Counter): Icon cache misses
//   - ainav_icon_cache_errors_total{operation} (Counter): Cache operation errors
//   - ainav_icon_fetches_total{source} (Counter): Upstream favicon fetches by source
//
// HTTP Metrics (internal/web):
//   - ainav_http_requests_total{method, route, status} (Counter): API requests
//   - ainav_http_request_duration_seconds (Histogram): API request latency
//
// Example Prometheus Queries:
//
//   # Current adaptive concurrency
//   ainav_batch_concurrency
//
//   # Throttled window rate
//   rate(ainav_batch_windows_total{result="rate_limited"}[5m])
//
//   # Item failure ratio
//   rate(ainav_batch_items_total{status="failed"}[5m]) /
//   rate(ainav_batch_items_total[5m])
//
//   # Icon cache hit rate
//   rate(ainav_icon_cache_hits_total[5m]) /
//   (rate(ainav_icon_cache_hits_total[5m]) + rate(ainav_icon_cache_misses_total[5m]))
//
//   # P95 API latency
//   histogram_quantile(0.95, rate(ainav_http_request_duration_seconds_bucket[5m]))

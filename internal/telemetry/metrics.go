// Package telemetry provides application-level observability for the catalog monitor.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<CKD_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped every 15-60 seconds. It is NOT served by
// the Gin router, so it is unaffected by API rate limiting.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Catalog API call counters, labelled by action and outcome
//   - Bulk fetch page duration, retry, and abort counters
//   - Snapshot cache load outcomes and write failures
//   - Organization detail fetch failure counter
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (the route template) rather than the raw request
// URL to prevent unbounded label cardinality from user-supplied query strings.
// Catalog API metrics use the fixed action name (e.g. "package_search"), never
// the dataset or organization identifier.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Catalog API metrics — recorded by the CKAN client on every upstream call.
//
// CatalogAPICallsTotal has labels {action, outcome} where action is the CKAN
// action name (organization_list, package_search, ...) and outcome is one of
// "ok", "http_error", "transport_error", "decode_error". Because the client
// converts every failure into a neutral empty value, this counter is the only
// place where upstream failures remain distinguishable from genuinely empty
// results.
//
// Example PromQL queries:
//   - Upstream failure rate:  sum(rate(catalog_api_calls_total{outcome!="ok"}[5m]))
//   - Calls by action:        sum by (action) (rate(catalog_api_calls_total[5m]))
var CatalogAPICallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_api_calls_total",
		Help: "Total number of catalog API calls, by action and outcome.",
	},
	[]string{"action", "outcome"},
)

// Bulk fetch metrics — recorded by the paginated dataset fetcher.
//
// PageFetchDuration observes one successful page retrieval (not individual
// retry attempts). PageRetriesTotal counts failed attempts that were retried;
// BulkFetchAbortsTotal counts fetches that terminated early after a page
// exhausted its retry budget.
//
// Example PromQL queries:
//   - p95 page latency:   histogram_quantile(0.95, rate(bulk_fetch_page_duration_seconds_bucket[1h]))
//   - Alert expression:   increase(bulk_fetch_aborts_total[1h]) > 0
var (
	PageFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bulk_fetch_page_duration_seconds",
			Help:    "Duration of a single successful dataset search page fetch.",
			Buckets: prometheus.DefBuckets,
		},
	)

	PageRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_fetch_page_retries_total",
			Help: "Total number of failed page fetch attempts that were retried.",
		},
	)

	BulkFetchAbortsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_fetch_aborts_total",
			Help: "Total number of bulk fetches aborted after a page exhausted its retries.",
		},
	)
)

// Snapshot cache metrics.
//
// SnapshotLoadsTotal has a single {outcome} label: "hit" (file read and
// parsed), "miss" (no file, fresh fetch), "corrupt" (file deleted, fresh
// fetch), "refresh" (manual invalidation, fresh fetch).
var (
	SnapshotLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_cache_loads_total",
			Help: "Total number of snapshot cache loads, by outcome.",
		},
		[]string{"outcome"},
	)

	SnapshotWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_cache_write_failures_total",
			Help: "Total number of snapshot cache writes that failed and were ignored.",
		},
	)
)

// OrgDetailFailuresTotal counts organization detail fetches that failed and
// were compensated with a fallback stub. An alert on a sustained non-zero rate
// catches partial catalog outages that the UI would otherwise mask.
var OrgDetailFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "org_detail_failures_total",
		Help: "Total number of organization detail fetches replaced by fallback stubs.",
	},
)

// MemoHitsTotal counts memoized call results served without touching the
// upstream API, by endpoint family.
var MemoHitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "memo_cache_hits_total",
		Help: "Total number of memoized API call results served from cache, by action.",
	},
	[]string{"action"},
)

// Package metrics exposes Prometheus collectors for the bookmark service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	storeOperationsTotal        *prometheus.CounterVec
	storeOperationSeconds       *prometheus.HistogramVec
	extractionsTotal            *prometheus.CounterVec
	extractionDurationSeconds   *prometheus.HistogramVec
	extractionCacheTotal        *prometheus.CounterVec
	fetchRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Observations made before
// Init are dropped.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		storeOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookmarks_store_operations_total",
				Help: "Total number of repository calls, labeled by operation and result.",
			},
			[]string{"op", "result"},
		)

		storeOperationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookmarks_store_operation_seconds",
				Help:    "Histogram of repository call latencies, labeled by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookmarks_metadata_extractions_total",
				Help: "Total number of metadata extractions, labeled by status.",
			},
			[]string{"status"},
		)

		extractionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookmarks_metadata_extraction_seconds",
				Help:    "Histogram of metadata extraction latencies, labeled by status.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		)

		extractionCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookmarks_metadata_cache_total",
				Help: "Metadata cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		fetchRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookmarks_fetch_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStoreOp records one repository call.
func ObserveStoreOp(op, result string, duration time.Duration) {
	if storeOperationsTotal == nil {
		return
	}
	storeOperationsTotal.WithLabelValues(op, result).Inc()
	storeOperationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveExtraction records one metadata extraction. The target host is not a
// label because callers choose it.
func ObserveExtraction(status string, duration time.Duration) {
	if extractionsTotal == nil {
		return
	}
	extractionsTotal.WithLabelValues(status).Inc()
	extractionDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveCacheLookup counts a metadata cache hit, miss or error.
func ObserveCacheLookup(result string) {
	if extractionCacheTotal == nil {
		return
	}
	extractionCacheTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait. domain must
// come from a bounded set.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if fetchRateLimitDelaysSeconds == nil {
		return
	}
	fetchRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

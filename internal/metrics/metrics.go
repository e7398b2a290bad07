// Package metrics exposes Prometheus collectors for banner resolution.
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
	cacheLookupsTotal          *prometheus.CounterVec
	cacheDisposalsTotal        *prometheus.CounterVec
	cacheEntries               prometheus.Gauge
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       prometheus.Histogram
	resolutionsTotal           *prometheus.CounterVec
	recomputesTotal            *prometheus.CounterVec
	driftReassertionsTotal     prometheus.Counter
	activeViews                prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times; every Observe helper
// calls it, so explicit initialization is optional.
func Init() {
	once.Do(func() {
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbanner_cache_lookups_total",
				Help: "Image cache lookups, labeled by result (hit or miss).",
			},
			[]string{"result"},
		)

		cacheDisposalsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbanner_cache_disposals_total",
				Help: "Cache entries removed, labeled by reason (release or invalidate).",
			},
			[]string{"reason"},
		)

		cacheEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mdbanner_cache_entries",
				Help: "Number of entries currently held by the image cache.",
			},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbanner_fetches_total",
				Help: "Remote image fetches, labeled by HTTP status code or error.",
			},
			[]string{"status"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mdbanner_fetch_duration_seconds",
				Help:    "Histogram of remote image fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbanner_resolutions_total",
				Help: "Banner source resolutions, labeled by source kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		recomputesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbanner_recomputes_total",
				Help: "Banner recomputations, labeled by trigger.",
			},
			[]string{"trigger"},
		)

		driftReassertionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mdbanner_drift_reassertions_total",
				Help: "Banner elements re-applied after a host mutation detached or altered them.",
			},
		)

		activeViews = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mdbanner_active_views",
				Help: "Number of open views tracked by the coordinator.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbanner_http_requests_total",
				Help: "Total number of preview HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mdbanner_http_request_duration_seconds",
				Help:    "Histogram of preview HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveDisposal counts a removed cache entry.
func ObserveDisposal(reason string) {
	Init()
	cacheDisposalsTotal.WithLabelValues(reason).Inc()
}

// SetCacheEntries records the current cache size.
func SetCacheEntries(n int) {
	Init()
	cacheEntries.Set(float64(n))
}

// ObserveFetch records a remote fetch. status is 0 for transport errors.
func ObserveFetch(status int, duration time.Duration) {
	Init()
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	fetchesTotal.WithLabelValues(label).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveResolution counts a resolution attempt.
func ObserveResolution(kind, outcome string) {
	Init()
	resolutionsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRecompute counts a banner recomputation.
func ObserveRecompute(trigger string) {
	Init()
	recomputesTotal.WithLabelValues(trigger).Inc()
}

// ObserveReassertion counts a drift reassertion.
func ObserveReassertion() {
	Init()
	driftReassertionsTotal.Inc()
}

// IncActiveViews increments the open views gauge.
func IncActiveViews() {
	Init()
	activeViews.Inc()
}

// DecActiveViews decrements the open views gauge.
func DecActiveViews() {
	Init()
	activeViews.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

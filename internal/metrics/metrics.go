// Package metrics exposes Prometheus collectors for the crawl service.
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
	crawlerFetchesTotal        *prometheus.CounterVec
	crawlerFetchRetriesTotal   prometheus.Counter
	crawlerBreakerTripsTotal   prometheus.Counter
	crawlerBreakerState        prometheus.Gauge
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBooksTotal          *prometheus.CounterVec
	crawlerPageDurationSeconds *prometheus.HistogramVec
	crawlerRateLimitDelays     prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetches_total",
				Help: "Total outbound fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerFetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_fetch_retries_total",
				Help: "Total fetch attempts that were retried after a network-class error.",
			},
		)

		crawlerBreakerTripsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_breaker_trips_total",
				Help: "Total circuit breaker trips caused by source 503 responses.",
			},
		)

		crawlerBreakerState = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_breaker_state",
				Help: "Current breaker state (0=closed, 1=open, 2=half_open).",
			},
		)

		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total page crawls, labeled by page and status.",
			},
			[]string{"page", "status"},
		)

		crawlerBooksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_books_total",
				Help: "Total book persistence operations, labeled by op (added, updated, failed).",
			},
			[]string{"op"},
		)

		crawlerPageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_page_duration_seconds",
				Help:    "Histogram of full page-crawl latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"page"},
		)

		crawlerRateLimitDelays = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the fetch counter for the given outcome.
func ObserveFetch(outcome string) {
	if crawlerFetchesTotal != nil {
		crawlerFetchesTotal.WithLabelValues(outcome).Inc()
	}
}

// IncRetry counts one retried fetch attempt.
func IncRetry() {
	if crawlerFetchRetriesTotal != nil {
		crawlerFetchRetriesTotal.Inc()
	}
}

// BreakerTripped counts one breaker trip.
func BreakerTripped() {
	if crawlerBreakerTripsTotal != nil {
		crawlerBreakerTripsTotal.Inc()
	}
}

// SetBreakerState records the breaker's current state.
func SetBreakerState(state int) {
	if crawlerBreakerState != nil {
		crawlerBreakerState.Set(float64(state))
	}
}

// ObservePage records one completed page crawl.
func ObservePage(page, status string, duration time.Duration) {
	if crawlerPagesTotal != nil {
		crawlerPagesTotal.WithLabelValues(page, status).Inc()
	}
	if crawlerPageDurationSeconds != nil {
		crawlerPageDurationSeconds.WithLabelValues(page).Observe(duration.Seconds())
	}
}

// ObserveBook counts one book persistence outcome.
func ObserveBook(op string) {
	if crawlerBooksTotal != nil {
		crawlerBooksTotal.WithLabelValues(op).Inc()
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	if crawlerRateLimitDelays != nil {
		crawlerRateLimitDelays.Observe(duration.Seconds())
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	if httpRequestDurationSeconds != nil {
		httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

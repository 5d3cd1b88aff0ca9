// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingPagesTotal    *prometheus.CounterVec
	detailFetchesTotal   *prometheus.CounterVec
	recordsTotal         *prometheus.CounterVec
	runsTotal            *prometheus.CounterVec
	runDurationSeconds   *prometheus.HistogramVec
	pacingDelaySeconds   *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpDurationSeconds  *prometheus.HistogramVec
	activeDetailWorkers  prometheus.Gauge

	once sync.Once
)

// Init registers all collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobsift_listing_pages_total",
				Help: "Listing pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		detailFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobsift_detail_fetches_total",
				Help: "Detail page fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobsift_records_total",
				Help: "Normalized records, labeled by site and disposition (new, duplicate, rejected).",
			},
			[]string{"site", "disposition"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobsift_runs_total",
				Help: "Crawl runs, labeled by site and status (completed, aborted).",
			},
			[]string{"site", "status"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobsift_run_duration_seconds",
				Help:    "End-to-end crawl run durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"site"},
		)

		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobsift_pacing_delay_seconds",
				Help:    "Time spent waiting on the request pacer.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobsift_http_requests_total",
				Help: "API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobsift_http_request_duration_seconds",
				Help:    "API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeDetailWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobsift_active_detail_workers",
				Help: "Detail fetch workers currently in flight.",
			},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SanitizeHost extracts a lowercase hostname for labeling, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveListingPage counts a listing page fetch.
func ObserveListingPage(site, outcome string) {
	if listingPagesTotal != nil {
		listingPagesTotal.WithLabelValues(site, outcome).Inc()
	}
}

// ObserveDetailFetch counts a detail page fetch.
func ObserveDetailFetch(site, outcome string) {
	if detailFetchesTotal != nil {
		detailFetchesTotal.WithLabelValues(site, outcome).Inc()
	}
}

// ObserveRecord counts a normalized record by disposition.
func ObserveRecord(site, disposition string) {
	if recordsTotal != nil {
		recordsTotal.WithLabelValues(site, disposition).Inc()
	}
}

// ObserveRun records a finished run and its duration.
func ObserveRun(site, status string, duration time.Duration) {
	if runsTotal != nil {
		runsTotal.WithLabelValues(site, status).Inc()
		runDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	}
}

// ObservePacingDelay records time spent waiting on the pacer.
func ObservePacingDelay(host string, duration time.Duration) {
	if pacingDelaySeconds != nil {
		pacingDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
	}
}

// ObserveHTTPRequest records an API request.
func ObserveHTTPRequest(method, route string, code string, duration time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, code).Inc()
		httpDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

// IncActiveWorkers increments the in-flight detail worker gauge.
func IncActiveWorkers() {
	if activeDetailWorkers != nil {
		activeDetailWorkers.Inc()
	}
}

// DecActiveWorkers decrements the in-flight detail worker gauge.
func DecActiveWorkers() {
	if activeDetailWorkers != nil {
		activeDetailWorkers.Dec()
	}
}

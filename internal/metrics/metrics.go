// Package metrics exposes Prometheus collectors for the harvest pipeline.
package metrics

import (
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_searches_total",
			Help: "Total number of search API calls, labeled by engine and status.",
		},
		[]string{"engine", "status"},
	)

	articlesDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_articles_discovered_total",
			Help: "Total number of article stubs returned by search, labeled by domain.",
		},
		[]string{"domain"},
	)

	duplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_duplicates_total",
			Help: "Total number of stubs flagged as suspected duplicates.",
		},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetches_total",
			Help: "Total number of content fetches, labeled by strategy and result.",
		},
		[]string{"strategy", "result"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Histogram of content fetch latencies, labeled by strategy.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		},
		[]string{"strategy"},
	)

	pdfDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_pdf_downloads_total",
			Help: "Total number of PDF downloads, labeled by result.",
		},
		[]string{"result"},
	)

	storageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_storage_errors_total",
			Help: "Total number of failed storage writes, labeled by sink.",
		},
		[]string{"sink"},
	)

	queryQuotaRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_query_quota_remaining",
			Help: "Search queries left before the daily cap is reached.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"limiter"},
	)
)

// SanitizeSite sanitizes a URL or bare domain to a lowercase hostname.
// It returns "unknown" if the input is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveSearch records one search call and the number of stubs it produced.
func ObserveSearch(engine, domain, status string, results int) {
	searchesTotal.WithLabelValues(engine, status).Inc()
	if results > 0 {
		articlesDiscoveredTotal.WithLabelValues(SanitizeSite(domain)).Add(float64(results))
	}
}

// ObserveDuplicates adds n flagged duplicates.
func ObserveDuplicates(n int) {
	if n > 0 {
		duplicatesTotal.Add(float64(n))
	}
}

// ObserveFetch records a content fetch outcome.
func ObserveFetch(strategy, result string, duration time.Duration) {
	fetchesTotal.WithLabelValues(strategy, result).Inc()
	fetchDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObservePDFDownload records a PDF download outcome.
func ObservePDFDownload(result string) {
	pdfDownloadsTotal.WithLabelValues(result).Inc()
}

// ObserveStorageError increments the failure counter for a sink.
func ObserveStorageError(sink string) {
	storageErrorsTotal.WithLabelValues(sink).Inc()
}

// SetQuotaRemaining publishes the remaining daily query budget.
func SetQuotaRemaining(n int) {
	queryQuotaRemaining.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(limiter string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(limiter).Observe(duration.Seconds())
}

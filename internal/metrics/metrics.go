// Package metrics exposes Prometheus collectors for the follower tracker.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ResultSuccess labels successful scrapes; failures are labeled with their error kind.
const ResultSuccess = "success"

var (
	scrapesTotal               *prometheus.CounterVec
	scrapeDurationSeconds      *prometheus.HistogramVec
	contentAttempts            prometheus.Histogram
	batchTargetsTotal          *prometheus.CounterVec
	batchDurationSeconds       prometheus.Histogram
	profileFollowers           *prometheus.GaugeVec
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_scrapes_total",
				Help: "Total number of profile scrapes, labeled by result (success or error kind).",
			},
			[]string{"result"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_scrape_duration_seconds",
				Help:    "Histogram of end-to-end scrape durations, labeled by result.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 90},
			},
			[]string{"result"},
		)

		contentAttempts = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_content_attempts",
				Help:    "Number of content-ready polls needed per successful navigation.",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
		)

		batchTargetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_batch_targets_total",
				Help: "Total number of batch entries, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		batchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_batch_duration_seconds",
				Help:    "Histogram of batch run durations.",
				Buckets: prometheus.ExponentialBuckets(5, 2, 10),
			},
		)

		profileFollowers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tracker_profile_followers",
				Help: "Last scraped follower count per username.",
			},
			[]string{"username"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_jobs_total",
				Help: "Total number of refresh jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracker_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape records one scrape result. result is ResultSuccess or an error kind.
func ObserveScrape(result string, duration time.Duration) {
	Init()
	scrapesTotal.WithLabelValues(result).Inc()
	scrapeDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveContentAttempts records how many polls a navigation needed.
func ObserveContentAttempts(attempts int) {
	Init()
	contentAttempts.Observe(float64(attempts))
}

// ObserveBatch records the totals of a finished batch.
func ObserveBatch(succeeded, failed int, duration time.Duration) {
	Init()
	batchTargetsTotal.WithLabelValues("success").Add(float64(succeeded))
	batchTargetsTotal.WithLabelValues("error").Add(float64(failed))
	batchDurationSeconds.Observe(duration.Seconds())
}

// SetFollowerCount publishes the latest count for a username.
func SetFollowerCount(username string, count int64) {
	Init()
	profileFollowers.WithLabelValues(username).Set(float64(count))
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

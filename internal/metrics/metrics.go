// Package metrics exposes Prometheus collectors for the archiver.
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

// Outcome labels shared by the counters below.
const (
	OutcomeStored  = "stored"
	OutcomeSkipped = "skipped"
	OutcomeSolved  = "solved"
	OutcomeFailed  = "failed"
	OutcomeSuccess = "success"
)

var (
	archiverPagesTotal            *prometheus.CounterVec
	archiverBytesTotal            *prometheus.CounterVec
	archiverPostsTotal            *prometheus.CounterVec
	archiverChallengesTotal       *prometheus.CounterVec
	archiverFetchRetriesTotal     *prometheus.CounterVec
	archiverPublishTotal          *prometheus.CounterVec
	archiverRunsTotal             *prometheus.CounterVec
	archiverActiveFetches         prometheus.Gauge
	archiverRateLimitDelaysSecond *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archiverPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_pages_total",
				Help: "Total number of thread pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		archiverBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		archiverPostsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_posts_total",
				Help: "Total number of posts handled, labeled by sink and outcome.",
			},
			[]string{"sink", "outcome"},
		)

		archiverChallengesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_challenges_total",
				Help: "Total number of interstitial challenges, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		archiverFetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by site.",
			},
			[]string{"site"},
		)

		archiverPublishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_publish_total",
				Help: "Total number of post notifications, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		archiverRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_runs_total",
				Help: "Total number of archive runs, labeled by status.",
			},
			[]string{"status"},
		)

		archiverActiveFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_active_fetches",
				Help: "Number of page fetches currently in flight.",
			},
		)

		archiverRateLimitDelaysSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_rate_limit_delays_seconds",
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

// ObservePage records a fetched page.
func ObservePage(site string, status int, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	archiverPagesTotal.WithLabelValues(sanitizedSite, strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		archiverBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObservePost records a post that was stored or skipped.
func ObservePost(sink, outcome string) {
	archiverPostsTotal.WithLabelValues(sink, outcome).Inc()
}

// ObserveChallenge records an interstitial that was solved or failed.
func ObserveChallenge(outcome string) {
	archiverChallengesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry records a retried fetch.
func ObserveRetry(site string) {
	archiverFetchRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObservePublish records a post notification outcome.
func ObservePublish(outcome string) {
	archiverPublishTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	archiverRunsTotal.WithLabelValues(status).Inc()
}

// IncActiveFetches increments the in-flight fetch gauge.
func IncActiveFetches() {
	archiverActiveFetches.Inc()
}

// DecActiveFetches decrements the in-flight fetch gauge.
func DecActiveFetches() {
	archiverActiveFetches.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	archiverRateLimitDelaysSecond.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

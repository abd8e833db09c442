package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launch_layer"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"method", "path"},
	)

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "requests_total",
			Help:      "Total number of token launch requests by program and result.",
		},
		[]string{"program", "result"},
	)

	allocationAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "allocation_attempts",
			Help:      "Candidate keypairs drawn per successful allocation.",
			Buckets:   prometheus.LinearBuckets(1, 1, 20),
		},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "results_total",
			Help:      "Total number of submission path results.",
		},
		[]string{"path", "result"},
	)

	submissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "duration_seconds",
			Help:      "Duration of a submission path from send to final status.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"path"},
	)

	submissionRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "retries_total",
			Help:      "Total number of retried submission attempts.",
		},
		[]string{"path"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		launches,
		allocationAttempts,
		submissions,
		submissionDuration,
		submissionRetries,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// TrackInFlight increments the in-flight gauge and returns its release.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordHTTPRequest records one handled request. The path should be a route
// template; raw paths are collapsed with CanonicalPath.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if !strings.Contains(path, "{") {
		path = CanonicalPath(path)
	}
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLaunch records the result of one launch request.
func RecordLaunch(program, result string) {
	if program == "" {
		program = "unknown"
	}
	launches.WithLabelValues(program, result).Inc()
}

// RecordAllocation records how many candidates an allocation drew.
func RecordAllocation(attempts int) {
	allocationAttempts.Observe(float64(attempts))
}

// Submission implements the pipeline's metrics sink.
type Submission struct{}

// RecordSubmission records one path result.
func (Submission) RecordSubmission(path, result string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	submissions.WithLabelValues(path, result).Inc()
	submissionDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordRetry records one retried attempt on a path.
func (Submission) RecordRetry(path string) {
	submissionRetries.WithLabelValues(path).Inc()
}

// CanonicalPath collapses per-token paths so mint addresses do not become
// label values.
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "tokens" {
		return "/api/tokens/{mint}"
	}
	return "/" + trimmed
}

package drive

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request metrics, labeled by method, endpoint (path only, query stripped),
// resulting status, and an error-kind tag. Recorded for every attempt on
// every exit path, success or failure.
var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driveconnect_drive_request_duration_seconds",
			Help:    "Duration of Drive API request attempts.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status", "error"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveconnect_drive_requests_total",
			Help: "Total Drive API request attempts.",
		},
		[]string{"method", "endpoint", "status", "error"},
	)
)

// observeRequest records one request attempt. status 0 means the attempt
// failed before any HTTP response arrived (network error, cancellation).
func observeRequest(method, endpoint string, status int, duration time.Duration, errKind string) {
	labels := prometheus.Labels{
		"method":   method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(status),
		"error":    errKind,
	}

	requestDuration.With(labels).Observe(duration.Seconds())
	requestsTotal.With(labels).Inc()
}

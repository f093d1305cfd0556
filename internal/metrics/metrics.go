// Package metrics provides Prometheus metrics for the lanbox server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanbox_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "target", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lanbox_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "target"},
	)

	// Transfer metrics
	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanbox_download_bytes_total",
			Help: "Total bytes streamed to clients",
		},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanbox_upload_bytes_total",
			Help: "Total bytes written from accepted uploads",
		},
	)

	uploadedFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanbox_uploaded_files_total",
			Help: "Uploaded files by outcome",
		},
		[]string{"outcome"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanbox_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanbox_active_sessions",
			Help: "Number of live session tokens",
		},
	)

	// Sandbox metrics
	sandboxDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanbox_sandbox_denials_total",
			Help: "Requests rejected for resolving outside the allowed roots",
		},
	)
)

// Handler returns the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, target string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, target, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, target).Observe(duration.Seconds())
}

// RecordDownload records bytes streamed for one download.
func RecordDownload(bytes int64) {
	downloadBytesTotal.Add(float64(bytes))
}

// RecordUploadedFile records one file part outcome; accepted files also add
// their payload size.
func RecordUploadedFile(accepted bool, bytes int64) {
	outcome := "accepted"
	if !accepted {
		outcome = "skipped"
	}
	uploadedFilesTotal.WithLabelValues(outcome).Inc()
	if accepted {
		uploadBytesTotal.Add(float64(bytes))
	}
}

// RecordAuthAttempt records a login attempt result.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the live session count.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordSandboxDenial records a request rejected by the path authority.
func RecordSandboxDenial() {
	sandboxDenialsTotal.Inc()
}

// Target maps a request path to its dispatch target so metric labels stay
// low-cardinality; arbitrary file paths all land on "download".
func Target(path string) string {
	switch {
	case path == "/":
		return "landing"
	case path == "/login":
		return "login"
	case path == "/browse" || strings.HasPrefix(path, "/browse/"):
		return "browse"
	case path == "/search":
		return "search"
	case path == "/config":
		return "config"
	case path == "/upload":
		return "upload"
	case path == "/healthz":
		return "healthz"
	case strings.HasPrefix(path, "/dav/") || path == "/dav":
		return "dav"
	default:
		return "download"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, Target(r.URL.Path), rw.statusCode, time.Since(start))
	})
}

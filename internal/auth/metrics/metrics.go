// Package metrics exposes the prometheus counters tracked by the auth
// service and the HTTP instrumentation middleware.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome (success, failure, second_factor_pending).",
		},
		[]string{"outcome"},
	)

	TokenRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_rotations_total",
			Help: "Refresh token rotations by outcome (success, failure, replay).",
		},
		[]string{"outcome"},
	)

	SecondFactorChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_second_factor_checks_total",
			Help: "Second-factor verifications by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var registerOnce sync.Once

// Register installs the collectors in the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LoginAttempts,
			TokenRotations,
			SecondFactorChecks,
			httpRequestsTotal,
			httpRequestDuration,
		)
	})
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps a handler with request count and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

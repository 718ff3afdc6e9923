package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "codehub"
	metricsSubsystem = "http"
)

type httpMetrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	responseBytes *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	inFlight      prometheus.Gauge
}

var (
	defaultHTTPMetricsOnce sync.Once
	defaultHTTPMetricsInst *httpMetrics
)

func getDefaultHTTPMetrics() *httpMetrics {
	defaultHTTPMetricsOnce.Do(func() {
		defaultHTTPMetricsInst = newHTTPMetrics(prometheus.DefaultRegisterer)
	})
	return defaultHTTPMetricsInst
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: name, Help: help}
	}
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts(opts("requests_total",
			"API requests by route and status class.")), []string{"method", "route", "status_class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds.",
			Buckets:   []float64{.002, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		responseBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "response_size_bytes",
			Help:      "Uncompressed response body size.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"route"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts(opts("errors_total",
			"API responses with status >= 400 by status code.")), []string{"method", "route", "status_code"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts(opts("requests_in_flight",
			"API requests currently being served."))),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency, m.responseBytes, m.failures, m.inFlight)
	}
	return m
}

func requestMetricsMiddleware(metrics *httpMetrics, next http.Handler) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		metrics.inFlight.Inc()
		defer metrics.inFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := requestRouteLabel(r)
		metrics.requests.WithLabelValues(r.Method, route, httpStatusClass(rec.status)).Inc()
		metrics.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		metrics.responseBytes.WithLabelValues(route).Observe(float64(rec.bytes))
		if rec.status >= http.StatusBadRequest {
			metrics.failures.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		}
	})
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

type routeCaptureKey struct{}

// routeCapture carries the pattern matched by the mux back out to the
// middlewares wrapping it; each of those holds its own request copy.
type routeCapture struct {
	pattern string
}

func routeCaptureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), routeCaptureKey{}, &routeCapture{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// captureRoutePattern wraps the mux, which records its match on the request it is given.
func captureRoutePattern(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if c, ok := r.Context().Value(routeCaptureKey{}).(*routeCapture); ok {
			c.pattern = r.Pattern
		}
	})
}

// requestRouteLabel returns a low-cardinality route: the mux pattern when one
// matched, otherwise a coarse prefix bucket.
func requestRouteLabel(r *http.Request) string {
	if r == nil || r.URL == nil {
		return "unknown"
	}
	if route := patternRoute(r.Pattern); route != "" {
		return route
	}
	if c, ok := r.Context().Value(routeCaptureKey{}).(*routeCapture); ok {
		if route := patternRoute(c.pattern); route != "" {
			return route
		}
	}

	path := r.URL.Path
	switch {
	case path == "/healthz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/v1/admin/"):
		return "/api/v1/admin/*"
	case strings.HasPrefix(path, "/api/v1/repos/"):
		return "/api/v1/repos/*"
	case strings.HasPrefix(path, "/api/v1/"):
		return "/api/v1/*"
	case strings.HasPrefix(path, "/debug/pprof/"):
		return "/debug/pprof/*"
	default:
		return "other"
	}
}

// patternRoute strips the method from a "METHOD /path" mux pattern.
func patternRoute(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if _, route, ok := strings.Cut(pattern, " "); ok {
		return strings.TrimSpace(route)
	}
	return pattern
}

func httpStatusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestMetricsMiddlewareCountsFailuresByStatusCode(t *testing.T) {
	metrics := newHTTPMetrics(prometheus.NewRegistry())
	handler := requestMetricsMiddleware(metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := testutil.ToFloat64(metrics.inFlight); got != 1 {
			t.Errorf("expected one in-flight request while serving, got %f", got)
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"already merged"}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/repos/acme/demo/pulls/1/merge", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}

	if got := testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodPost, "/api/v1/repos/*", "4xx")); got != 1 {
		t.Fatalf("expected request counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.failures.WithLabelValues(http.MethodPost, "/api/v1/repos/*", "409")); got != 1 {
		t.Fatalf("expected failure counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.inFlight); got != 0 {
		t.Fatalf("expected in-flight gauge back at 0, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.responseBytes); got != 1 {
		t.Fatalf("expected one response size series, got %d", got)
	}
	if got := testutil.CollectAndCount(metrics.latency); got != 1 {
		t.Fatalf("expected one latency series, got %d", got)
	}
}

func TestRequestMetricsMiddlewareSkipsMetricsEndpoint(t *testing.T) {
	metrics := newHTTPMetrics(prometheus.NewRegistry())
	handler := requestMetricsMiddleware(metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := testutil.CollectAndCount(metrics.requests); got != 0 {
		t.Fatalf("expected no request samples for /metrics, got %d", got)
	}
}

func TestServerMetricsUseMatchedRoutePattern(t *testing.T) {
	env := setupAPITest(t, ServerOptions{})
	env.register(t, "alice")
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/users/alice", "", nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/users/nobody", "", nil), http.StatusNotFound)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	for _, want := range []string{
		`codehub_http_requests_total{method="GET",route="/api/v1/users/{username}",status_class="2xx"} 1`,
		`codehub_http_errors_total{method="GET",route="/api/v1/users/{username}",status_code="404"} 1`,
		"codehub_http_requests_in_flight",
		"codehub_http_response_size_bytes",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected scrape output to contain %q", want)
		}
	}
}

func TestHTTPStatusClass(t *testing.T) {
	tests := map[int]string{101: "1xx", 200: "2xx", 204: "2xx", 304: "3xx", 404: "4xx", 503: "5xx", 0: "unknown", 999: "unknown"}
	for code, want := range tests {
		if got := httpStatusClass(code); got != want {
			t.Fatalf("httpStatusClass(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestRequestRouteLabel(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		want    string
	}{
		{name: "pattern", path: "/api/v1/repos/acme/demo/issues/3", pattern: "GET /api/v1/repos/{owner}/{repo}/issues/{number}", want: "/api/v1/repos/{owner}/{repo}/issues/{number}"},
		{name: "repos fallback", path: "/api/v1/repos/acme/demo", want: "/api/v1/repos/*"},
		{name: "admin fallback", path: "/api/v1/admin/reconcile", want: "/api/v1/admin/*"},
		{name: "api fallback", path: "/api/v1/users/octo", want: "/api/v1/*"},
		{name: "healthz", path: "/healthz", want: "/healthz"},
		{name: "other", path: "/favicon.ico", want: "other"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Pattern = tc.pattern
			if got := requestRouteLabel(req); got != tc.want {
				t.Fatalf("requestRouteLabel(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

func TestRouteCaptureExposesPatternToOuterMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}", func(w http.ResponseWriter, r *http.Request) {})

	var got string
	outer := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(r.Context()))
			got = requestRouteLabel(r)
		})
	}
	handler := chainMiddleware(captureRoutePattern(mux), routeCaptureMiddleware, outer)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/repos/acme/demo", nil))

	if got != "/api/v1/repos/{owner}/{repo}" {
		t.Fatalf("expected captured pattern, got %q", got)
	}
}

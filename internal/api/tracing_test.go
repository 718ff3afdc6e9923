package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// installSpanRecorder routes spans to an in-memory recorder for the test.
func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	prevPropagator := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(prevPropagator)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestRequestTracingMiddlewareNamesSpanAfterMatchedRoute(t *testing.T) {
	recorder := installSpanRecorder(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/issues", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":1}`))
	})
	handler := chainMiddleware(captureRoutePattern(mux), routeCaptureMiddleware, requestTracingMiddleware)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/repos/acme/demo/issues", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if got, want := span.Name(), "POST /api/v1/repos/{owner}/{repo}/issues"; got != want {
		t.Fatalf("expected span name %q, got %q", want, got)
	}
	if span.Status().Code != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", span.Status().Code)
	}
	attrs := span.Attributes()
	if !hasAttribute(attrs, attribute.String("http.route", "/api/v1/repos/{owner}/{repo}/issues")) {
		t.Fatalf("expected http.route attribute, got %v", attrs)
	}
	if !hasAttribute(attrs, attribute.Int("http.status_code", http.StatusCreated)) {
		t.Fatalf("expected http.status_code=201, got %v", attrs)
	}
	if !hasAttribute(attrs, attribute.Int64("http.response_size", int64(len(`{"number":1}`)))) {
		t.Fatalf("expected http.response_size attribute, got %v", attrs)
	}
}

func TestRequestTracingMiddlewareMarksServerErrors(t *testing.T) {
	recorder := installSpanRecorder(t)
	handler := requestTracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/repos/acme/demo", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if got, want := spans[0].Name(), "GET /api/v1/repos/*"; got != want {
		t.Fatalf("expected fallback span name %q, got %q", want, got)
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected span status Error, got %v", spans[0].Status().Code)
	}
}

func TestRequestTracingMiddlewareContinuesPropagatedTrace(t *testing.T) {
	recorder := installSpanRecorder(t)
	handler := requestTracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected propagated trace id, got %s", got)
	}
	if got := spans[0].Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Fatalf("expected remote parent span, got %s", got)
	}
}

func TestRequestTracingMiddlewareSkipsOperationalEndpoints(t *testing.T) {
	recorder := installSpanRecorder(t)
	handler := requestTracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, path := range []string{"/debug/pprof/", "/healthz", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := len(recorder.Ended()); got != 0 {
		t.Fatalf("expected no spans for probe and profiling paths, got %d", got)
	}
}

func hasAttribute(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, attr := range attrs {
		if attr.Key == want.Key && attr.Value == want.Value {
			return true
		}
	}
	return false
}

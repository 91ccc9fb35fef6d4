package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return recorder
}

func TestTracing_SpanNames(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/test", "GET /test"},
		{http.MethodGet, "/api/v1/founders/F001/matches", "GET /api/v1/founders/{id}/matches"},
		{http.MethodGet, "/api/v1/labels/S042", "GET /api/v1/labels/{id}"},
		{http.MethodPost, "/api/v1/runs", "POST /api/v1/runs"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			recorder := recordSpans(t)
			handler := Tracing("foundermatch-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			if spans[0].Name() != tt.want {
				t.Errorf("span name = %q, want %q", spans[0].Name(), tt.want)
			}
		})
	}
}

func TestTracing_RequestIDAndIDs(t *testing.T) {
	recorder := recordSpans(t)

	var traceID, spanID string
	handler := RequestID(Tracing("foundermatch-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r)
		spanID = GetSpanID(r)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/matrix", nil)
	req.Header.Set(RequestIDHeader, "trace-me")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if traceID != span.SpanContext().TraceID().String() || spanID != span.SpanContext().SpanID().String() {
		t.Errorf("ids %s/%s do not match the recorded span", traceID, spanID)
	}

	found := false
	for _, attr := range span.Attributes() {
		if attr.Key == "request.id" && attr.Value.AsString() == "trace-me" {
			found = true
		}
	}
	if !found {
		t.Error("span is missing the request.id attribute")
	}
}

func TestTracing_HonorsTraceparent(t *testing.T) {
	recorder := recordSpans(t)

	handler := Tracing("foundermatch-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want the incoming one", got)
	}
	if got := spans[0].Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("parent span id = %s", got)
	}
}

func TestGetTraceID_NoActiveSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if GetTraceID(req) != "" || GetSpanID(req) != "" {
		t.Error("expected empty ids without an active span")
	}
}

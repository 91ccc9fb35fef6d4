package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a recording provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		table    string
		op       DBOperation
		wantName string
	}{
		{"match_runs", DBOperationInsert, "insert match_runs"},
		{"match_results", DBOperationCopy, "copy match_results"},
		{"match_runs", DBOperationDelete, "delete match_runs"},
		{"", DBOperationExec, "exec"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			recorder := recordSpans(t)

			_, endSpan := StartDBSpan(context.Background(), tt.table, tt.op)
			endSpan(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != tt.wantName {
				t.Errorf("span name = %q, want %q", span.Name(), tt.wantName)
			}
			attrs := attrMap(span.Attributes())
			if attrs["db.system"] != "postgresql" {
				t.Errorf("db.system = %q", attrs["db.system"])
			}
			if attrs["db.operation"] != string(tt.op) {
				t.Errorf("db.operation = %q, want %q", attrs["db.operation"], tt.op)
			}
			table, ok := attrs["db.sql.table"]
			if tt.table == "" && ok {
				t.Error("unexpected db.sql.table attribute")
			}
			if tt.table != "" && table != tt.table {
				t.Errorf("db.sql.table = %q, want %q", table, tt.table)
			}
			if span.Status().Code == codes.Error {
				t.Error("successful operation should not mark the span as failed")
			}
		})
	}
}

func TestStartClientSpan(t *testing.T) {
	recorder := recordSpans(t)

	_, endSpan := StartClientSpan(context.Background(), "redis", "publish_run",
		attribute.String("match.run_id", "run-1"))
	endSpan(errors.New("connection refused"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "redis publish_run" {
		t.Errorf("span name = %q", span.Name())
	}
	attrs := attrMap(span.Attributes())
	if attrs["peer.service"] != "redis" || attrs["match.run_id"] != "run-1" {
		t.Errorf("attributes = %v", attrs)
	}
	if span.Status().Code != codes.Error || span.Status().Description != "connection refused" {
		t.Errorf("status = %+v, want error", span.Status())
	}
	if len(span.Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	recorder := recordSpans(t)

	ctx, endRun := StartSpan(context.Background(), "match_run")
	SetAttributes(ctx, attribute.Int("match.founders", 2))
	AddEvent(ctx, "matrix_built", attribute.Int("pairs", 6))
	_, endDB := StartDBSpan(ctx, "match_results", DBOperationCopy)
	endDB(nil)
	endRun(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	child, parent := spans[0], spans[1]
	if parent.Name() != "match_run" {
		t.Fatalf("parent span = %q", parent.Name())
	}
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("db span is not a child of the run span")
	}
	if child.SpanContext().TraceID() != parent.SpanContext().TraceID() {
		t.Error("spans should share a trace id")
	}
	if attrMap(parent.Attributes())["match.founders"] != "2" {
		t.Errorf("parent attributes = %v", parent.Attributes())
	}
	if len(parent.Events()) != 1 || parent.Events()[0].Name != "matrix_built" {
		t.Errorf("parent events = %v", parent.Events())
	}
}

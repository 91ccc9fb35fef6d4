package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names used by the span helpers.
const (
	TracerName         = "foundermatch"
	DBTracerName       = "foundermatch/db"
	ExternalTracerName = "foundermatch/external"
)

// DBOperation represents the type of database operation being traced.
type DBOperation string

const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationUpdate DBOperation = "update"
	DBOperationDelete DBOperation = "delete"
	DBOperationCopy   DBOperation = "copy" // COPY FROM STDIN bulk load
	DBOperationExec   DBOperation = "exec"
)

// StartDBSpan creates a client span for a Postgres operation.
//
//	ctx, endSpan := tracing.StartDBSpan(ctx, "match_results", tracing.DBOperationCopy)
//	defer func() { endSpan(err) }()
func StartDBSpan(ctx context.Context, table string, operation DBOperation) (context.Context, func(error)) {
	spanName := string(operation)
	if table != "" {
		spanName = spanName + " " + table
	}

	ctx, span := otel.Tracer(DBTracerName).Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", string(operation)),
		),
	)
	if table != "" {
		span.SetAttributes(attribute.String("db.sql.table", table))
	}

	return ctx, ender(span)
}

// StartClientSpan creates a client span for a call to an external system such as
// redis or s3. The span is named "<system> <operation>".
func StartClientSpan(ctx context.Context, system, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append([]attribute.KeyValue{
		attribute.String("peer.service", system),
		attribute.String("operation", operation),
	}, attrs...)

	ctx, span := otel.Tracer(ExternalTracerName).Start(ctx, system+" "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, ender(span)
}

// StartSpan creates a span for an internal operation.
//
//	ctx, endSpan := tracing.StartSpan(ctx, "match_run")
//	defer func() { endSpan(err) }()
func StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name)
	return ctx, ender(span)
}

func ender(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

// RunIDKey is the context key for the audit run ID
const RunIDKey contextKey = "run_id"

const queryKey contextKey = "query"

// WithRunID tags the context and the logger with the audit run ID
func WithRunID(ctx context.Context, logger *zap.Logger, runID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, RunIDKey, runID), logger.With(zap.String("run_id", runID))
}

// GetRunID retrieves the audit run ID from context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// WithQuery names the source query issued under ctx.
func WithQuery(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, queryKey, name)
}

// QueryName returns the source query named by WithQuery, if any.
func QueryName(ctx context.Context) string {
	name, _ := ctx.Value(queryKey).(string)
	return name
}

// WithTraceContext adds trace_id and span_id from the context's span.
// Without a valid span the logger is returned unchanged.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

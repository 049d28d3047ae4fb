package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by audit spans and instruments.
const (
	AttrRunID        = attribute.Key("audit.run_id")
	AttrStage        = attribute.Key("audit.stage")
	AttrQuery        = attribute.Key("audit.query")
	AttrChassisCount = attribute.Key("audit.chassis_count")
	AttrStockCount   = attribute.Key("audit.stock_count")
	AttrMismatches   = attribute.Key("audit.mismatch_count")
	AttrKeyCount     = attribute.Key("audit.key_count")
	AttrRowCount     = attribute.Key("audit.row_count")
	AttrMismatchKind = attribute.Key("audit.mismatch_kind")
	AttrResult       = attribute.Key("audit.result")
)

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartRun opens the root span of an audit run over a list of chassis.
func StartRun(ctx context.Context, runID string, chassis int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "audit.run", trace.WithAttributes(
		AttrRunID.String(runID),
		AttrChassisCount.Int(chassis),
	))
}

// StartStage opens the span of one pipeline stage, named audit.<stage>.
func StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, AttrStage.String(stage))
	return tracer().Start(ctx, "audit."+stage, trace.WithAttributes(attrs...))
}

// StartQuery opens the span of one source query over keys lookup values.
func StartQuery(ctx context.Context, name string, keys int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "audit.query."+name, trace.WithAttributes(
		AttrQuery.String(name),
		AttrKeyCount.Int(keys),
	))
}

// End closes span with an error status when err is set and Ok otherwise.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

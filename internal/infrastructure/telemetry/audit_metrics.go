package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Run results recorded on the runs counter.
const (
	ResultSuccess  = "success"
	ResultDegraded = "degraded"
)

var (
	// source queries run from milliseconds up to the query timeout
	queryBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	runBuckets   = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}
)

// AuditMetrics records the outcome of audit runs. A nil *AuditMetrics is
// valid and records nothing.
type AuditMetrics struct {
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	mismatches    metric.Int64Counter
	queryDuration metric.Float64Histogram
	queryErrors   metric.Int64Counter
}

// NewAuditMetrics registers the audit instruments on the meter.
func NewAuditMetrics(meter metric.Meter) (*AuditMetrics, error) {
	var (
		m   AuditMetrics
		err error
	)
	if m.runs, err = meter.Int64Counter("audit_runs_total",
		metric.WithDescription("Completed audit runs by result"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}
	if m.runDuration, err = meter.Float64Histogram("audit_run_duration_seconds",
		metric.WithDescription("Wall time of an audit run"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	); err != nil {
		return nil, err
	}
	if m.mismatches, err = meter.Int64Counter("audit_mismatches_total",
		metric.WithDescription("Mismatched chassis by kind"),
		metric.WithUnit("{chassis}"),
	); err != nil {
		return nil, err
	}
	if m.queryDuration, err = meter.Float64Histogram("audit_source_query_duration_seconds",
		metric.WithDescription("Duration of source system queries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(queryBuckets...),
	); err != nil {
		return nil, err
	}
	if m.queryErrors, err = meter.Int64Counter("audit_source_query_errors_total",
		metric.WithDescription("Failed source system queries"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordQuery records one source query.
func (m *AuditMetrics) RecordQuery(ctx context.Context, query string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrQuery.String(query))
	m.queryDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.queryErrors.Add(ctx, 1, attrs)
	}
}

// RecordMismatches adds mismatched chassis of one kind.
func (m *AuditMetrics) RecordMismatches(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.mismatches.Add(ctx, int64(n), metric.WithAttributes(AttrMismatchKind.String(kind)))
}

// RecordRun records a finished run.
func (m *AuditMetrics) RecordRun(ctx context.Context, result string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrResult.String(result))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}

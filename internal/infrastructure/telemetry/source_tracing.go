package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockaudit/internal/infrastructure/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// SourceTracing traces source database statements with otelgorm. Statement
// spans are tagged with the audit query that issued them and flagged when
// slower than Slow.
type SourceTracing struct {
	DBSystem string
	// BindValues records bound values, which hold chassis and customer numbers.
	BindValues bool
	Slow       time.Duration
}

type statementStartKey struct{}

// Register installs otelgorm and the audit callbacks on db. The audit only
// reads, so only the query and row chains are tagged.
func (t SourceTracing) Register(db *gorm.DB) error {
	opts := []otelgorm.Option{otelgorm.WithDBName(t.DBSystem)}
	if !t.BindValues {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("register otelgorm: %w", err)
	}
	if t.Slow <= 0 {
		t.Slow = logger.DefaultSlowQuery
	}

	// run inside the otelgorm span so the attributes land on it
	cb := db.Callback()
	return errors.Join(
		cb.Query().After("otel:before:select").Before("gorm:query").Register("audit:before:select", t.before),
		cb.Query().After("gorm:query").Before("otel:after:select").Register("audit:after:select", t.after),
		cb.Row().After("otel:before:row").Before("gorm:row").Register("audit:before:row", t.before),
		cb.Row().After("gorm:row").Before("otel:after:row").Register("audit:after:row", t.after),
	)
}

func (t SourceTracing) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if name := logger.QueryName(ctx); name != "" {
		trace.SpanFromContext(ctx).SetAttributes(AttrQuery.String(name))
	}
	db.Statement.Context = context.WithValue(ctx, statementStartKey{}, time.Now())
}

func (t SourceTracing) after(db *gorm.DB) {
	ctx := db.Statement.Context
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	start, ok := ctx.Value(statementStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > t.Slow {
		span.SetAttributes(attribute.Bool("db.slow_statement", true))
		span.AddEvent("slow_statement", trace.WithAttributes(
			attribute.Int64("elapsed_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", t.Slow.Milliseconds()),
		))
	}
}

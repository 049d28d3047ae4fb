package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockaudit/internal/infrastructure/logger"
	"github.com/erp/stockaudit/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func tracedDB(t *testing.T, tracing telemetry.SourceTracing) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, tracing.Register(db))
	return db
}

func spanNames(t *testing.T, sr *tracetest.SpanRecorder) []string {
	t.Helper()
	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func TestSourceTracing_TagsStatementsWithQuery(t *testing.T) {
	sr := setupTestTracer(t)
	db := tracedDB(t, telemetry.SourceTracing{DBSystem: "sqlite", Slow: time.Hour})

	ctx := logger.WithQuery(context.Background(), "partners")
	var n int
	require.NoError(t, db.WithContext(ctx).Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)

	spans := sr.Ended()
	require.NotEmpty(t, spans, "ended spans: %v", spanNames(t, sr))
	v, ok := attrValue(spans[0].Attributes(), telemetry.AttrQuery)
	require.True(t, ok)
	assert.Equal(t, "partners", v.AsString())
	assert.Empty(t, spans[0].Events())
}

func TestSourceTracing_FlagsSlowStatements(t *testing.T) {
	sr := setupTestTracer(t)
	db := tracedDB(t, telemetry.SourceTracing{DBSystem: "sqlite", Slow: time.Nanosecond})

	var n int
	require.NoError(t, db.WithContext(context.Background()).Raw("SELECT 1").Scan(&n).Error)

	spans := sr.Ended()
	require.NotEmpty(t, spans)
	_, ok := attrValue(spans[0].Attributes(), telemetry.AttrQuery)
	assert.False(t, ok)
	slow, ok := attrValue(spans[0].Attributes(), "db.slow_statement")
	require.True(t, ok)
	assert.True(t, slow.AsBool())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "slow_statement", spans[0].Events()[0].Name)
}

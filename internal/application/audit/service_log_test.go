package audit

import (
	"context"
	"testing"

	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/erp/stockaudit/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestService_Run_LogsCarryRunAndTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	settings := DefaultSettings()
	stockRepo := new(MockStockRepository)
	factRepo := new(MockFactRepository)
	setupStock(stockRepo, settings)
	setupFacts(factRepo)

	core, recorded := observer.New(zapcore.DebugLevel)
	svc, err := NewService(stockRepo, factRepo, settings, zap.New(core))
	require.NoError(t, err)

	ctx, _ := logger.WithRunID(context.Background(), zap.NewNop(), "run-7")
	outcome := svc.Run(ctx, audit.AuditList{"A", "B", "C"})
	require.False(t, outcome.Failed())

	done := recorded.FilterMessage("Audit run completed").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, "run-7", fields["run_id"])
	assert.Len(t, fields["trace_id"], 32)

	queries := recorded.FilterMessage("Source query finished").All()
	require.NotEmpty(t, queries)
	for _, q := range queries {
		assert.Equal(t, fields["trace_id"], q.ContextMap()["trace_id"])
		assert.NotEqual(t, fields["span_id"], q.ContextMap()["span_id"])
	}
}

func TestService_Run_NamesSourceQueries(t *testing.T) {
	settings := DefaultSettings()
	stockRepo := new(MockStockRepository)
	factRepo := new(MockFactRepository)
	setupStock(stockRepo, settings)
	setupFacts(factRepo)

	svc, err := NewService(stockRepo, factRepo, settings, zap.NewNop())
	require.NoError(t, err)
	require.False(t, svc.Run(context.Background(), audit.AuditList{"A", "B", "C"}).Failed())

	want := map[string]string{
		"FindStockCandidates":   queryStockCandidates,
		"FindMovementsByType":   queryStockMovements,
		"FindChassisOrders":     queryChassisOrders,
		"FindSalesOrders":       querySalesOrders,
		"FindMovementsByOrders": queryOrderMovements,
		"FindInvoices":          queryInvoices,
		"FindPartners":          queryPartners,
		"FindGoodsReceipts":     queryGoodsReceipts,
		"FindReceivables":       queryReceivables,
	}
	calls := append(stockRepo.Calls, factRepo.Calls...)
	require.NotEmpty(t, calls)
	for _, call := range calls {
		ctx, ok := call.Arguments.Get(0).(context.Context)
		require.True(t, ok, call.Method)
		assert.Equal(t, want[call.Method], logger.QueryName(ctx), call.Method)
	}
}

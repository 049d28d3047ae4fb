package audit

import (
	"errors"
	"testing"

	"github.com/erp/stockaudit/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSummary(t *testing.T) {
	list := AuditList{"A", "B", "C"}
	stock := NewStockSet("B", "C", "D")
	ms := Compare(list, stock)

	gr := day("2024-02-01")
	details := []Detail{
		{Chassis: "A", PONumber: ptr("PO1"), GRDate: &gr},
		{Chassis: "D", PONumber: ptr("PO2")},
		{Chassis: "E", PONumber: ptr("PO1")},
		{Chassis: "F", PONumber: ptr("")},
	}

	s := BuildSummary(list, stock, ms, details)
	assert.Equal(t, 3, s.ListTotal)
	assert.Equal(t, 3, s.SAPTotal)
	assert.Equal(t, 2, s.MismatchTotal)
	assert.Equal(t, 1, s.OnlyInList)
	assert.Equal(t, 1, s.OnlyInSAP)
	assert.Equal(t, 2, s.POTotal)
	assert.Equal(t, 1, s.POGRDone)
	assert.Equal(t, 1, s.PONotGR)
	assert.Equal(t, s.POTotal, s.POGRDone+s.PONotGR)

	rows := s.Rows()
	require.Len(t, rows, 8)
	assert.Equal(t, []any{MetricListTotal, 3}, rows[0])
	assert.Equal(t, []any{MetricPONotGR, 1}, rows[7])
}

func TestTablesSheets(t *testing.T) {
	ms := []Mismatch{{Chassis: "A", Kind: KindOnlyInList}}
	tables := Tables{
		Scopes:     DefaultScopes(),
		Summary:    Summary{ListTotal: 1, MismatchTotal: 1, OnlyInList: 1},
		Mismatches: ms,
		Details:    AssembleDetails(ms, FactSet{}, testPlan(t)),
		Statistics: BuildStatistics(ms, FactSet{}, testPlan(t)),
	}

	t.Run("statistics sheet is optional", func(t *testing.T) {
		sheets := tables.Sheets()
		require.Len(t, sheets, 3)
		assert.Equal(t, SheetSummary, sheets[0].Name)
		assert.Equal(t, SheetMismatches, sheets[1].Name)
		assert.Equal(t, SheetDetail, sheets[2].Name)
		assert.Equal(t, []any{"A", "Only in List"}, sheets[1].Rows[0])
	})

	t.Run("statistics sheet is last when enabled", func(t *testing.T) {
		withStats := tables
		withStats.IncludeStatistics = true
		sheets := withStats.Sheets()
		require.Len(t, sheets, 4)
		assert.Equal(t, SheetStatistics, sheets[3].Name)
		assert.Len(t, sheets[3].Rows, 1)
	})

	t.Run("row width matches columns", func(t *testing.T) {
		for _, sheet := range tables.Sheets() {
			for _, row := range sheet.Rows {
				assert.Len(t, row, len(sheet.Columns), sheet.Name)
			}
		}
	})
}

func TestFallback(t *testing.T) {
	cause := NewStageError(StageDetailEnricher, shared.ErrQueryTimeout)
	out := Fallback(AuditList{"A", "B", "A"}, DefaultScopes(), cause)

	assert.True(t, out.Failed())
	assert.True(t, errors.Is(out.Err, shared.ErrQueryTimeout))

	sheets := out.Tables.Sheets()
	require.Len(t, sheets, 4)

	summary := sheets[0].Rows
	assert.Equal(t, []any{MetricListTotal, 2}, summary[0])
	for _, row := range summary[1:8] {
		assert.Equal(t, 0, row[1])
	}
	require.Len(t, summary, 9)
	assert.Equal(t, MetricError, summary[8][0])
	assert.Contains(t, summary[8][1], "detail_enricher")

	for _, sheet := range sheets[1:] {
		require.Len(t, sheet.Rows, 1, sheet.Name)
		assert.Equal(t, SentinelChassis, sheet.Rows[0][0], sheet.Name)
		assert.Len(t, sheet.Rows[0], len(sheet.Columns), sheet.Name)
	}
}

func TestStageError(t *testing.T) {
	assert.Nil(t, NewStageError(StageStockResolver, nil))

	err := NewStageError(StageStockResolver, shared.ErrUnavailable)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageStockResolver, se.Stage)
	assert.True(t, errors.Is(err, shared.ErrUnavailable))

	assert.Same(t, err, NewStageError(StageDetailEnricher, err))
}

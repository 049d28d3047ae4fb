package audit

import (
	"errors"
	"fmt"
)

// Sheet names of the report artifact.
const (
	SheetSummary    = "Summary"
	SheetMismatches = "Mismatch_List"
	SheetDetail     = "Mismatch_Detail"
	SheetStatistics = "Mismatch_Statistics"

	// SentinelChassis fills the chassis column of a failed run's tables.
	SentinelChassis = "ERROR"
)

// Table is one named section of the report.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Tables is the complete result of a run.
type Tables struct {
	Scopes            []Scope
	Summary           Summary
	Mismatches        []Mismatch
	Details           []Detail
	Statistics        []Statistic
	IncludeStatistics bool
}

// Sheets renders the tables in artifact order.
func (t Tables) Sheets() []Table {
	sheets := []Table{
		{Name: SheetSummary, Columns: []string{"Metric", "Count"}, Rows: t.Summary.Rows()},
		t.mismatchSheet(),
		t.detailSheet(),
	}
	if t.IncludeStatistics {
		sheets = append(sheets, t.statisticsSheet())
	}
	return sheets
}

func (t Tables) mismatchSheet() Table {
	rows := make([][]any, 0, len(t.Mismatches))
	for _, m := range t.Mismatches {
		rows = append(rows, []any{m.Chassis, string(m.Kind)})
	}
	return Table{Name: SheetMismatches, Columns: []string{ColChassis, ColMismatchType}, Rows: rows}
}

func (t Tables) detailSheet() Table {
	rows := make([][]any, 0, len(t.Details))
	for _, d := range t.Details {
		rows = append(rows, d.Values())
	}
	return Table{Name: SheetDetail, Columns: DetailColumns(t.Scopes), Rows: rows}
}

func (t Tables) statisticsSheet() Table {
	rows := make([][]any, 0, len(t.Statistics))
	for _, s := range t.Statistics {
		rows = append(rows, s.Values())
	}
	return Table{Name: SheetStatistics, Columns: StatisticsColumns(), Rows: rows}
}

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageAuditList      Stage = "audit_list"
	StageStockResolver  Stage = "stock_resolver"
	StageSetComparator  Stage = "set_comparator"
	StageDetailEnricher Stage = "detail_enricher"
)

// StageError is a pipeline failure attributed to one stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err for stage, leaving nil untouched.
func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// Outcome is the single result of a run: either complete tables, or an
// error together with the degraded placeholder tables.
type Outcome struct {
	Tables Tables
	Err    error
}

// Failed reports whether the run fell back to degraded tables.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Succeeded wraps complete tables.
func Succeeded(t Tables) Outcome {
	return Outcome{Tables: t}
}

// Fallback builds the degraded outcome: list total preserved, derived counts
// zero, the error recorded in the summary and a sentinel row in every other
// section. All four sections are always present.
func Fallback(list AuditList, scopes []Scope, err error) Outcome {
	detail := Detail{
		Chassis:      SentinelChassis,
		MismatchType: KindError,
		SalesOrders:  make([]*string, len(scopes)),
		BillTo:       make([]*string, len(scopes)),
	}
	return Outcome{
		Err: err,
		Tables: Tables{
			Scopes: scopes,
			Summary: Summary{
				ListTotal: list.Len(),
				Error:     err.Error(),
			},
			Mismatches:        []Mismatch{{Chassis: SentinelChassis, Kind: KindError}},
			Details:           []Detail{detail},
			Statistics:        []Statistic{{Chassis: SentinelChassis, MismatchType: KindError}},
			IncludeStatistics: true,
		},
	}
}

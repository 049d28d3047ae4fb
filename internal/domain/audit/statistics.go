package audit

import "time"

// Statistics column names.
const (
	ColSalesOrderCount  = "SalesOrder_Count"
	ColPGICount         = "PGI_Count"
	ColReverseCount     = "Reverse_Count"
	ColLastMovementDate = "Last_Movement_Date"
	ColLastMovementType = "Last_Movement_Type"
)

// Statistic summarises the movement history of a mismatched chassis on its
// primary-scope orders.
type Statistic struct {
	Chassis          string
	SalesOrderCount  int
	PGICount         int
	ReverseCount     int
	LastMovementDate *time.Time
	LastMovementType *MovementType
	MismatchType     MismatchKind
}

// StatisticsColumns returns the column order of the statistics table.
func StatisticsColumns() []string {
	return []string{
		ColChassis,
		ColSalesOrderCount,
		ColPGICount,
		ColReverseCount,
		ColLastMovementDate,
		ColLastMovementType,
		ColMismatchType,
	}
}

// Values returns the row cells in StatisticsColumns order.
func (s Statistic) Values() []any {
	var lastType any
	if s.LastMovementType != nil {
		lastType = string(*s.LastMovementType)
	}
	return []any{
		s.Chassis,
		s.SalesOrderCount,
		s.PGICount,
		s.ReverseCount,
		cell(s.LastMovementDate),
		lastType,
		string(s.MismatchType),
	}
}

// BuildStatistics derives one statistics row per mismatch from the facts
// already fetched for enrichment.
func BuildStatistics(ms []Mismatch, facts FactSet, plan EnrichmentPlan) []Statistic {
	ix := newFactIndex(plan, facts)
	out := make([]Statistic, 0, len(ms))
	for _, m := range ms {
		st := Statistic{Chassis: m.Chassis, MismatchType: m.Kind}
		primary := ix.scopeOrders(m.Chassis, plan.Primary().SalesOrg)
		st.SalesOrderCount = len(primary)

		moves := ix.movements(primary)
		for _, mv := range moves {
			switch mv.Type {
			case plan.Codes.GoodsIssue:
				st.PGICount++
			case plan.Codes.Reversal:
				st.ReverseCount++
			}
		}
		if last, ok := latest(moves); ok {
			st.LastMovementDate = ptr(last.PostingDate)
			st.LastMovementType = ptr(last.Type)
		}
		out = append(out, st)
	}
	return out
}

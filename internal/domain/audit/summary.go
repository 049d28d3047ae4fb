package audit

// Summary metric names, in sheet order.
const (
	MetricListTotal     = "List_Total"
	MetricSAPTotal      = "SAP_Total"
	MetricMismatchTotal = "Mismatch_Total"
	MetricOnlyInList    = "Only_in_List"
	MetricOnlyInSAP     = "Only_in_SAP"
	MetricPOTotal       = "PO_Total_In_System"
	MetricPOGRDone      = "PO_GR_Done"
	MetricPONotGR       = "PO_Not_GR"
	MetricError         = "Error"
)

// Summary holds the scalar counts of a run. Error is set only on the
// degraded output of a failed run.
type Summary struct {
	ListTotal     int
	SAPTotal      int
	MismatchTotal int
	OnlyInList    int
	OnlyInSAP     int
	POTotal       int
	POGRDone      int
	PONotGR       int
	Error         string
}

// BuildSummary recomputes every count from the run's tables.
func BuildSummary(list AuditList, stock StockSet, ms []Mismatch, details []Detail) Summary {
	s := Summary{
		ListTotal:     list.Len(),
		SAPTotal:      stock.Len(),
		MismatchTotal: len(ms),
		OnlyInList:    CountKind(ms, KindOnlyInList),
		OnlyInSAP:     CountKind(ms, KindOnlyInSAP),
	}

	received := make(map[string]bool)
	for _, d := range details {
		if d.PONumber == nil || *d.PONumber == "" {
			continue
		}
		po := *d.PONumber
		received[po] = received[po] || d.GRDate != nil
	}
	s.POTotal = len(received)
	for _, done := range received {
		if done {
			s.POGRDone++
		}
	}
	s.PONotGR = s.POTotal - s.POGRDone
	return s
}

// Rows returns the summary as metric/value pairs.
func (s Summary) Rows() [][]any {
	rows := [][]any{
		{MetricListTotal, s.ListTotal},
		{MetricSAPTotal, s.SAPTotal},
		{MetricMismatchTotal, s.MismatchTotal},
		{MetricOnlyInList, s.OnlyInList},
		{MetricOnlyInSAP, s.OnlyInSAP},
		{MetricPOTotal, s.POTotal},
		{MetricPOGRDone, s.POGRDone},
		{MetricPONotGR, s.PONotGR},
	}
	if s.Error != "" {
		rows = append(rows, []any{MetricError, s.Error})
	}
	return rows
}

package audit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Detail column names. Per-scope columns are suffixed with the scope name.
const (
	ColChassis         = "Chassis"
	ColMismatchType    = "Mismatch_Type"
	ColSalesOrderFmt   = "SalesOrder_"
	ColPGIDoc          = "SalesOrderPGI_Doc"
	ColPGIDate         = "PGI_Date"
	ColHasReversal     = "Has_Reversal"
	ColLastIsPGI       = "Last_Is_PGI"
	ColInvoiceNo       = "Invoice_No"
	ColInvoiceDate     = "Invoice_Date"
	ColPONumber        = "PO_Number"
	ColPOCount         = "PO_Count"
	ColGRDate          = "GR_Date"
	ColInventoryInDate = "Inventory_In_Date"
	ColBillToFmt       = "BillTo_"
	ColARAmount        = "AR_Amount"
)

// Detail is the audit trail of one mismatched chassis. Nil fields are
// facts that could not be found.
type Detail struct {
	Chassis         string
	MismatchType    MismatchKind
	SalesOrders     []*string
	PGIDoc          *string
	PGIDate         *time.Time
	HasReversal     *bool
	LastIsPGI       *bool
	InvoiceNo       *string
	InvoiceDate     *time.Time
	PONumber        *string
	POCount         *int
	GRDate          *time.Time
	InventoryInDate *time.Time
	BillTo          []*string
	ARAmount        *decimal.Decimal
}

// DetailColumns returns the fixed column order of the detail table.
func DetailColumns(scopes []Scope) []string {
	cols := []string{ColChassis, ColMismatchType}
	for _, s := range scopes {
		cols = append(cols, ColSalesOrderFmt+s.Name)
	}
	cols = append(cols,
		ColPGIDoc, ColPGIDate, ColHasReversal, ColLastIsPGI,
		ColInvoiceNo, ColInvoiceDate,
		ColPONumber, ColPOCount, ColGRDate,
		ColInventoryInDate,
	)
	for _, s := range scopes {
		cols = append(cols, ColBillToFmt+s.Name)
	}
	return append(cols, ColARAmount)
}

// Values returns the row cells in DetailColumns order; nulls are nil.
func (d Detail) Values() []any {
	row := []any{d.Chassis, string(d.MismatchType)}
	for _, so := range d.SalesOrders {
		row = append(row, cell(so))
	}
	row = append(row,
		cell(d.PGIDoc), cell(d.PGIDate), cell(d.HasReversal), cell(d.LastIsPGI),
		cell(d.InvoiceNo), cell(d.InvoiceDate),
		cell(d.PONumber), cell(d.POCount), cell(d.GRDate),
		cell(d.InventoryInDate),
	)
	for _, b := range d.BillTo {
		row = append(row, cell(b))
	}
	return append(row, cell(d.ARAmount))
}

func cell[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptr[T any](v T) *T {
	return &v
}

// factIndex keys the fetched fact rows for per-chassis lookups.
type factIndex struct {
	plan         EnrichmentPlan
	ordersBy     map[string][]string
	headerBy     map[string]SalesOrderHeader
	movesBy      map[string][]Movement
	invoicesBy   map[string][]Invoice
	billToBy     map[string][]string
	receiptBy    map[string]time.Time
	receivableBy map[string]decimal.Decimal
}

func newFactIndex(plan EnrichmentPlan, f FactSet) *factIndex {
	ix := &factIndex{
		plan:         plan,
		ordersBy:     make(map[string][]string),
		headerBy:     make(map[string]SalesOrderHeader),
		movesBy:      make(map[string][]Movement),
		invoicesBy:   make(map[string][]Invoice),
		billToBy:     make(map[string][]string),
		receiptBy:    make(map[string]time.Time),
		receivableBy: make(map[string]decimal.Decimal),
	}
	seen := make(map[ChassisOrder]bool)
	for _, o := range f.Orders {
		if o.SalesOrder == "" || seen[o] {
			continue
		}
		seen[o] = true
		ix.ordersBy[o.Chassis] = append(ix.ordersBy[o.Chassis], o.SalesOrder)
	}
	for _, h := range f.Headers {
		ix.headerBy[h.SalesOrder] = h
	}
	for _, m := range f.Movements {
		ix.movesBy[m.OrderRef] = append(ix.movesBy[m.OrderRef], m)
	}
	for _, inv := range f.Invoices {
		ix.invoicesBy[inv.SalesOrder] = append(ix.invoicesBy[inv.SalesOrder], inv)
	}
	for _, p := range f.BillTo {
		if p.Customer != "" {
			ix.billToBy[p.SalesOrder] = append(ix.billToBy[p.SalesOrder], p.Customer)
		}
	}
	for _, r := range f.Receipts {
		if cur, ok := ix.receiptBy[r.PONumber]; !ok || r.PostingDate.After(cur) {
			ix.receiptBy[r.PONumber] = r.PostingDate
		}
	}
	for _, r := range f.Receivables {
		ix.receivableBy[r.Customer] = ix.receivableBy[r.Customer].Add(r.Amount)
	}
	return ix
}

// scopeOrders returns the chassis' orders that belong to the sales organisation.
func (ix *factIndex) scopeOrders(chassis, salesOrg string) []string {
	var out []string
	for _, o := range ix.ordersBy[chassis] {
		if h, ok := ix.headerBy[o]; ok && h.SalesOrg == salesOrg {
			out = append(out, o)
		}
	}
	return out
}

func (ix *factIndex) movements(orders []string) []Movement {
	var out []Movement
	for _, o := range orders {
		out = append(out, ix.movesBy[o]...)
	}
	return out
}

// AssembleDetails builds one detail row per mismatch, in mismatch order.
// A chassis without any fact keeps a row whose derived columns are all nil.
func AssembleDetails(ms []Mismatch, facts FactSet, plan EnrichmentPlan) []Detail {
	ix := newFactIndex(plan, facts)
	out := make([]Detail, 0, len(ms))
	for _, m := range ms {
		out = append(out, ix.detail(m))
	}
	return out
}

func (ix *factIndex) detail(m Mismatch) Detail {
	plan := ix.plan
	codes := plan.Codes
	d := Detail{
		Chassis:      m.Chassis,
		MismatchType: m.Kind,
		SalesOrders:  make([]*string, len(plan.Scopes)),
		BillTo:       make([]*string, len(plan.Scopes)),
	}
	if len(ix.ordersBy[m.Chassis]) == 0 {
		return d
	}

	billTo := make([]*string, len(plan.Scopes))
	for i, s := range plan.Scopes {
		orders := ix.scopeOrders(m.Chassis, s.SalesOrg)
		if so := maxString(orders); so != "" && plan.Facts.Enabled(FactSalesOrder) {
			d.SalesOrders[i] = ptr(so)
		}
		var customers []string
		for _, o := range orders {
			customers = append(customers, ix.billToBy[o]...)
		}
		if c := maxString(customers); c != "" {
			billTo[i] = ptr(c)
		}
	}
	if plan.Facts.Enabled(FactBillTo) {
		copy(d.BillTo, billTo)
	}

	primary := ix.scopeOrders(m.Chassis, plan.Primary().SalesOrg)
	if len(primary) > 0 {
		moves := ix.movements(primary)
		if plan.Facts.Enabled(FactGoodsIssue) {
			ix.applyMovements(&d, moves, codes)
		}
		if plan.Facts.Enabled(FactBilling) {
			ix.applyInvoices(&d, primary)
		}
		ix.applyPurchaseOrders(&d, primary)
	}

	// receivables belong to the primary-scope bill-to party only
	if plan.Facts.Enabled(FactReceivable) && billTo[0] != nil {
		if amt, ok := ix.receivableBy[*billTo[0]]; ok {
			d.ARAmount = ptr(amt)
		}
	}
	return d
}

func (ix *factIndex) applyMovements(d *Detail, moves []Movement, codes MovementCodes) {
	hasReversal := false
	var (
		stockMoves []Movement
		giDoc      string
		giDate     *time.Time
		inDate     *time.Time
	)
	for _, mv := range moves {
		if !mv.PostingDate.IsZero() && (inDate == nil || mv.PostingDate.Before(*inDate)) {
			inDate = ptr(mv.PostingDate)
		}
		switch mv.Type {
		case codes.GoodsIssue:
			stockMoves = append(stockMoves, mv)
			if compareDocKey(mv.DocNumber, giDoc) > 0 {
				giDoc = mv.DocNumber
			}
			if giDate == nil || mv.PostingDate.After(*giDate) {
				giDate = ptr(mv.PostingDate)
			}
		case codes.Reversal:
			stockMoves = append(stockMoves, mv)
			hasReversal = true
		}
	}
	d.HasReversal = ptr(hasReversal)
	d.InventoryInDate = inDate
	if giDoc != "" {
		d.PGIDoc = ptr(giDoc)
	}
	d.PGIDate = giDate
	if last, ok := latest(stockMoves); ok {
		d.LastIsPGI = ptr(last.Type == codes.GoodsIssue)
	}
}

func (ix *factIndex) applyInvoices(d *Detail, orders []string) {
	var (
		no   string
		date *time.Time
	)
	for _, o := range orders {
		for _, inv := range ix.invoicesBy[o] {
			if inv.InvoiceNo > no {
				no = inv.InvoiceNo
			}
			if inv.InvoiceDate != nil && (date == nil || inv.InvoiceDate.After(*date)) {
				date = ptr(*inv.InvoiceDate)
			}
		}
	}
	if no != "" {
		d.InvoiceNo = ptr(no)
	}
	d.InvoiceDate = date
}

func (ix *factIndex) applyPurchaseOrders(d *Detail, orders []string) {
	set := make(map[string]struct{})
	for _, o := range orders {
		if po := ix.headerBy[o].PurchaseOrderNumber(); po != "" {
			set[po] = struct{}{}
		}
	}
	pos := sortedKeys(set)

	if ix.plan.Facts.Enabled(FactPurchaseOrder) {
		d.POCount = ptr(len(pos))
		if len(pos) > 0 {
			d.PONumber = ptr(pos[len(pos)-1])
		}
	}
	// GR_Date is the receipt of the reported PO, not of any other
	if ix.plan.Facts.Enabled(FactGoodsReceipt) && len(pos) > 0 {
		if gr, ok := ix.receiptBy[pos[len(pos)-1]]; ok {
			d.GRDate = ptr(gr)
		}
	}
}

func maxString(values []string) string {
	out := ""
	for _, v := range values {
		if v > out {
			out = v
		}
	}
	return out
}

package audit

import (
	"strings"
	"time"
)

// MovementType is the inventory movement code of a material document line.
type MovementType string

// Movement codes used by the audit when nothing else is configured.
const (
	DefaultGoodsIssue         MovementType = "601"
	DefaultGoodsIssueReversal MovementType = "602"
	DefaultGoodsReceipt       MovementType = "101"
)

// MovementCodes names the load-bearing movement types.
type MovementCodes struct {
	GoodsIssue   MovementType
	Reversal     MovementType
	GoodsReceipt MovementType
}

// DefaultMovementCodes returns the standard sales-order movement codes.
func DefaultMovementCodes() MovementCodes {
	return MovementCodes{
		GoodsIssue:   DefaultGoodsIssue,
		Reversal:     DefaultGoodsIssueReversal,
		GoodsReceipt: DefaultGoodsReceipt,
	}
}

// StockRelevant returns the codes that decide whether a unit is on hand.
func (c MovementCodes) StockRelevant() []MovementType {
	return []MovementType{c.GoodsIssue, c.Reversal}
}

func (c MovementCodes) isStockRelevant(t MovementType) bool {
	return t == c.GoodsIssue || t == c.Reversal
}

// Movement is one material document line posted against a sales order.
type Movement struct {
	OrderRef    string
	Type        MovementType
	PostingDate time.Time
	DocYear     string
	DocNumber   string
	LineItem    string
}

// After reports whether m is chronologically later than o. Postings on the
// same date are ordered by document year, document number and line item.
func (m Movement) After(o Movement) bool {
	if !m.PostingDate.Equal(o.PostingDate) {
		return m.PostingDate.After(o.PostingDate)
	}
	if c := compareDocKey(m.DocYear, o.DocYear); c != 0 {
		return c > 0
	}
	if c := compareDocKey(m.DocNumber, o.DocNumber); c != 0 {
		return c > 0
	}
	return compareDocKey(m.LineItem, o.LineItem) > 0
}

// compareDocKey compares numeric document keys that may or may not carry
// leading zeros.
func compareDocKey(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// LastMovements keeps the chronologically last movement per order reference.
// When two rows are indistinguishable the later one in input order wins.
// Rows without an order reference are dropped.
func LastMovements(moves []Movement) map[string]Movement {
	last := make(map[string]Movement)
	for _, m := range moves {
		if m.OrderRef == "" {
			continue
		}
		cur, ok := last[m.OrderRef]
		if !ok || !cur.After(m) {
			last[m.OrderRef] = m
		}
	}
	return last
}

// latest returns the last movement of the slice, or false when it is empty.
func latest(moves []Movement) (Movement, bool) {
	var (
		out   Movement
		found bool
	)
	for _, m := range moves {
		if !found || !out.After(m) {
			out = m
			found = true
		}
	}
	return out, found
}

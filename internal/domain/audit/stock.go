package audit

// StockCandidate is a chassis found on sales-order stock together with the
// sales order it is allocated to. SalesOrder is empty when the allocation
// chain has no order.
type StockCandidate struct {
	Chassis    string
	SalesOrder string
}

// StockFilter restricts the candidate inventory rows.
type StockFilter struct {
	Plant           string
	StorageLocation string
	MaterialPrefix  string
}

// ResolveStock derives the set of chassis genuinely on hand.
//
// Only goods-issue and reversal movements are considered. A candidate is in
// stock when its order has no such movement or the last one is not a goods
// issue. Candidates without an order are kept: missing movement evidence is
// not treated as issued.
func ResolveStock(candidates []StockCandidate, moves []Movement, codes MovementCodes) StockSet {
	relevant := make([]Movement, 0, len(moves))
	for _, m := range moves {
		if codes.isStockRelevant(m.Type) {
			relevant = append(relevant, m)
		}
	}
	last := LastMovements(relevant)

	stock := make(StockSet)
	for _, c := range candidates {
		if c.Chassis == "" {
			continue
		}
		if c.SalesOrder != "" {
			if m, ok := last[c.SalesOrder]; ok && m.Type == codes.GoodsIssue {
				continue
			}
		}
		stock[c.Chassis] = struct{}{}
	}
	return stock
}

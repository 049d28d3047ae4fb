package audit

import "context"

// StockRepository reads the inventory and movement facts the stock resolver needs.
type StockRepository interface {
	// FindStockCandidates returns chassis on sales-order stock matching the filter
	FindStockCandidates(ctx context.Context, filter StockFilter) ([]StockCandidate, error)

	// FindMovementsByType returns every movement of the given types, system wide
	FindMovementsByType(ctx context.Context, types []MovementType) ([]Movement, error)
}

// FactRepository reads the sales, logistics, billing and procurement facts
// used to enrich mismatched chassis. Every method takes its keys as one bound
// set and returns no rows for an empty set.
type FactRepository interface {
	// FindChassisOrders returns the order references allocated to the chassis
	FindChassisOrders(ctx context.Context, chassis []string) ([]ChassisOrder, error)

	// FindSalesOrders returns headers of orders belonging to the sales organisations
	FindSalesOrders(ctx context.Context, orders []string, salesOrgs []string) ([]SalesOrderHeader, error)

	// FindMovementsByOrders returns every movement posted against the orders
	FindMovementsByOrders(ctx context.Context, orders []string) ([]Movement, error)

	// FindInvoices returns billing documents referencing the orders
	FindInvoices(ctx context.Context, orders []string) ([]Invoice, error)

	// FindPartners returns header partners of the given role
	FindPartners(ctx context.Context, orders []string, role string) ([]Partner, error)

	// FindGoodsReceipts returns goods receipts posted against the purchase orders
	FindGoodsReceipts(ctx context.Context, poNumbers []string) ([]GoodsReceipt, error)

	// FindReceivables returns open receivable balances of the customers
	FindReceivables(ctx context.Context, customers []string) ([]Receivable, error)
}

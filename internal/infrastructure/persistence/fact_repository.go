package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/shopspring/decimal"
)

// GormFactRepository implements audit.FactRepository over the ERP tables.
// Every key set is bound as a single parameter.
type GormFactRepository struct {
	src *Source
}

// NewGormFactRepository creates a new GormFactRepository
func NewGormFactRepository(src *Source) *GormFactRepository {
	return &GormFactRepository{src: src}
}

// FindChassisOrders returns the order references allocated to the chassis.
// A chassis without allocation yields one row with an empty order.
func (r *GormFactRepository) FindChassisOrders(ctx context.Context, chassis []string) ([]audit.ChassisOrder, error) {
	if len(chassis) == 0 {
		return nil, nil
	}

	var rows []struct {
		Chassis    sql.NullString
		SalesOrder sql.NullString
	}
	query := `
SELECT DISTINCT
	o."SERNR" AS chassis,
	s."SDAUFNR" AS sales_order
FROM {t:OBJK} o
LEFT JOIN {t:SER02} s
	ON o."OBKNR" = s."OBKNR"
WHERE ` + r.src.AnyOf(`o."SERNR"`)
	if err := r.src.Scan(ctx, &rows, query, r.src.Set(chassis)); err != nil {
		return nil, fmt.Errorf("query chassis orders: %w", err)
	}

	out := make([]audit.ChassisOrder, 0, len(rows))
	for _, row := range rows {
		if !row.Chassis.Valid {
			continue
		}
		out = append(out, audit.ChassisOrder{Chassis: row.Chassis.String, SalesOrder: row.SalesOrder.String})
	}
	return out, nil
}

// FindSalesOrders returns headers of the orders that belong to one of the
// sales organisations, with the customer PO from the header business data.
func (r *GormFactRepository) FindSalesOrders(ctx context.Context, orders []string, salesOrgs []string) ([]audit.SalesOrderHeader, error) {
	if len(orders) == 0 || len(salesOrgs) == 0 {
		return nil, nil
	}

	var rows []struct {
		SalesOrder sql.NullString
		SalesOrg   sql.NullString
		HeaderPo   sql.NullString
		CustomerPo sql.NullString
	}
	query := `
SELECT
	v."VBELN" AS sales_order,
	v."VKORG" AS sales_org,
	v."BSTNK" AS header_po,
	b."BSTKD" AS customer_po
FROM {t:VBAK} v
LEFT JOIN {t:VBKD} b
	ON b."VBELN" = v."VBELN"
	AND b."POSNR" = ?
WHERE ` + r.src.AnyOf(`v."VBELN"`) + `
	AND ` + r.src.AnyOf(`v."VKORG"`)
	if err := r.src.Scan(ctx, &rows, query, headerItem, r.src.Set(orders), r.src.Set(salesOrgs)); err != nil {
		return nil, fmt.Errorf("query sales orders: %w", err)
	}

	out := make([]audit.SalesOrderHeader, 0, len(rows))
	for _, row := range rows {
		out = append(out, audit.SalesOrderHeader{
			SalesOrder: row.SalesOrder.String,
			SalesOrg:   row.SalesOrg.String,
			HeaderPO:   row.HeaderPo.String,
			CustomerPO: row.CustomerPo.String,
		})
	}
	return out, nil
}

// FindMovementsByOrders returns every movement posted against the orders, oldest first
func (r *GormFactRepository) FindMovementsByOrders(ctx context.Context, orders []string) ([]audit.Movement, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	var rows []movementRow
	query := movementColumnsSQL + r.src.AnyOf(`m."KDAUF"`) + movementOrderSQL
	if err := r.src.Scan(ctx, &rows, query, r.src.Set(orders)); err != nil {
		return nil, fmt.Errorf("query movements by order: %w", err)
	}
	return toMovements(rows)
}

// FindInvoices returns billing documents whose items reference the orders
func (r *GormFactRepository) FindInvoices(ctx context.Context, orders []string) ([]audit.Invoice, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	var rows []struct {
		SalesOrder  sql.NullString
		InvoiceNo   sql.NullString
		InvoiceDate sql.NullString
	}
	query := `
SELECT DISTINCT
	p."AUBEL" AS sales_order,
	k."VBELN" AS invoice_no,
	k."FKDAT" AS invoice_date
FROM {t:VBRP} p
JOIN {t:VBRK} k
	ON k."VBELN" = p."VBELN"
WHERE ` + r.src.AnyOf(`p."AUBEL"`)
	if err := r.src.Scan(ctx, &rows, query, r.src.Set(orders)); err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	out := make([]audit.Invoice, 0, len(rows))
	for _, row := range rows {
		date, err := ParseDate(row.InvoiceDate)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", row.InvoiceNo.String, err)
		}
		out = append(out, audit.Invoice{
			SalesOrder:  row.SalesOrder.String,
			InvoiceNo:   row.InvoiceNo.String,
			InvoiceDate: date,
		})
	}
	return out, nil
}

// FindPartners returns the header partners of the given function
func (r *GormFactRepository) FindPartners(ctx context.Context, orders []string, role string) ([]audit.Partner, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	var rows []struct {
		SalesOrder sql.NullString
		Customer   sql.NullString
	}
	query := `
SELECT DISTINCT
	p."VBELN" AS sales_order,
	p."KUNNR" AS customer
FROM {t:VBPA} p
WHERE ` + r.src.AnyOf(`p."VBELN"`) + `
	AND p."PARVW" = ?
	AND p."POSNR" = ?`
	if err := r.src.Scan(ctx, &rows, query, r.src.Set(orders), role, headerItem); err != nil {
		return nil, fmt.Errorf("query partners: %w", err)
	}

	out := make([]audit.Partner, 0, len(rows))
	for _, row := range rows {
		out = append(out, audit.Partner{SalesOrder: row.SalesOrder.String, Customer: row.Customer.String})
	}
	return out, nil
}

// FindGoodsReceipts returns goods receipt postings of the purchase orders
func (r *GormFactRepository) FindGoodsReceipts(ctx context.Context, poNumbers []string) ([]audit.GoodsReceipt, error) {
	if len(poNumbers) == 0 {
		return nil, nil
	}

	var rows []struct {
		PoNumber    sql.NullString
		PostingDate sql.NullString
	}
	query := `
SELECT
	e."EBELN" AS po_number,
	e."BUDAT" AS posting_date
FROM {t:EKBE} e
WHERE ` + r.src.AnyOf(`e."EBELN"`) + `
	AND e."VGABE" = ?`
	if err := r.src.Scan(ctx, &rows, query, r.src.Set(poNumbers), goodsReceiptEvent); err != nil {
		return nil, fmt.Errorf("query goods receipts: %w", err)
	}

	out := make([]audit.GoodsReceipt, 0, len(rows))
	for _, row := range rows {
		posted, err := ParseDate(row.PostingDate)
		if err != nil {
			return nil, fmt.Errorf("goods receipt for %s: %w", row.PoNumber.String, err)
		}
		if posted == nil {
			continue
		}
		out = append(out, audit.GoodsReceipt{PONumber: row.PoNumber.String, PostingDate: *posted})
	}
	return out, nil
}

// FindReceivables returns the open items of the customers, credits negated
func (r *GormFactRepository) FindReceivables(ctx context.Context, customers []string) ([]audit.Receivable, error) {
	if len(customers) == 0 {
		return nil, nil
	}

	var rows []struct {
		Customer    sql.NullString
		DebitCredit sql.NullString
		Amount      decimal.NullDecimal
	}
	query := `
SELECT
	d."KUNNR" AS customer,
	d."SHKZG" AS debit_credit,
	d."DMBTR" AS amount
FROM {t:BSID} d
WHERE ` + r.src.AnyOf(`d."KUNNR"`)
	if err := r.src.Scan(ctx, &rows, query, r.src.Set(customers)); err != nil {
		return nil, fmt.Errorf("query receivables: %w", err)
	}

	out := make([]audit.Receivable, 0, len(rows))
	for _, row := range rows {
		if !row.Amount.Valid {
			continue
		}
		amount := row.Amount.Decimal
		if row.DebitCredit.String == creditIndicator {
			amount = amount.Neg()
		}
		out = append(out, audit.Receivable{Customer: row.Customer.String, Amount: amount})
	}
	return out, nil
}

package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erp/stockaudit/internal/domain/audit"
)

const stockCandidatesSQL = `
SELECT DISTINCT
	o."SERNR" AS chassis,
	v."VBELN" AS sales_order
FROM {t:NSDM_V_MSKA} k
LEFT JOIN {t:SER02} s
	ON k."VBELN" = s."SDAUFNR"
	AND s."POSNR" = ?
LEFT JOIN {t:OBJK} o
	ON s."OBKNR" = o."OBKNR"
LEFT JOIN {t:VBAK} v
	ON s."SDAUFNR" = v."VBELN"
WHERE k."WERKS" = ?
	AND k."LGORT" = ?
	AND k."KALAB" > 0
	AND k."MATNR" LIKE ?`

const movementColumnsSQL = `
SELECT
	m."KDAUF" AS order_ref,
	m."BWART" AS movement_type,
	m."BUDAT_MKPF" AS posting_date,
	m."MJAHR" AS doc_year,
	m."MBLNR" AS doc_number,
	m."ZEILE" AS line_item
FROM {t:NSDM_V_MSEG} m
WHERE `

const movementOrderSQL = `
ORDER BY m."BUDAT_MKPF", m."MJAHR", m."MBLNR", m."ZEILE"`

type stockCandidateRow struct {
	Chassis    sql.NullString
	SalesOrder sql.NullString
}

type movementRow struct {
	OrderRef     sql.NullString
	MovementType sql.NullString
	PostingDate  sql.NullString
	DocYear      sql.NullString
	DocNumber    sql.NullString
	LineItem     sql.NullString
}

// toMovements converts rows, dropping lines without a posting date.
func toMovements(rows []movementRow) ([]audit.Movement, error) {
	out := make([]audit.Movement, 0, len(rows))
	for _, r := range rows {
		posted, err := ParseDate(r.PostingDate)
		if err != nil {
			return nil, fmt.Errorf("movement %s/%s: %w", r.DocNumber.String, r.LineItem.String, err)
		}
		if posted == nil {
			continue
		}
		out = append(out, audit.Movement{
			OrderRef:    r.OrderRef.String,
			Type:        audit.MovementType(r.MovementType.String),
			PostingDate: *posted,
			DocYear:     r.DocYear.String,
			DocNumber:   r.DocNumber.String,
			LineItem:    r.LineItem.String,
		})
	}
	return out, nil
}

// GormStockRepository implements audit.StockRepository over the ERP tables
type GormStockRepository struct {
	src *Source
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(src *Source) *GormStockRepository {
	return &GormStockRepository{src: src}
}

// FindStockCandidates returns chassis on sales-order stock in the plant and
// storage location whose material starts with the prefix.
func (r *GormStockRepository) FindStockCandidates(ctx context.Context, filter audit.StockFilter) ([]audit.StockCandidate, error) {
	var rows []stockCandidateRow
	err := r.src.Scan(ctx, &rows, stockCandidatesSQL,
		firstItem, filter.Plant, filter.StorageLocation, filter.MaterialPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("query stock candidates: %w", err)
	}

	out := make([]audit.StockCandidate, 0, len(rows))
	for _, row := range rows {
		if !row.Chassis.Valid || row.Chassis.String == "" {
			continue
		}
		out = append(out, audit.StockCandidate{
			Chassis:    row.Chassis.String,
			SalesOrder: row.SalesOrder.String,
		})
	}
	return out, nil
}

// FindMovementsByType returns every movement of the given types, oldest first
func (r *GormStockRepository) FindMovementsByType(ctx context.Context, types []audit.MovementType) ([]audit.Movement, error) {
	if len(types) == 0 {
		return nil, nil
	}
	codes := make([]string, len(types))
	for i, t := range types {
		codes[i] = string(t)
	}

	var rows []movementRow
	query := movementColumnsSQL + r.src.AnyOf(`m."BWART"`) + movementOrderSQL
	if err := r.src.Scan(ctx, &rows, query, r.src.Set(codes)); err != nil {
		return nil, fmt.Errorf("query movements by type: %w", err)
	}
	return toMovements(rows)
}

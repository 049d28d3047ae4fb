package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	// headerItem is the item number carrying header level data.
	headerItem = "000000"
	// firstItem is the sales order item the serial numbers are allocated to.
	firstItem = "000010"
	// goodsReceiptEvent is the EKBE transaction type of a goods receipt.
	goodsReceiptEvent = "1"
	// creditIndicator marks credit postings in open items.
	creditIndicator = "H"
)

var tableToken = regexp.MustCompile(`\{t:([A-Za-z0-9_]+)\}`)

// Source renders and runs read-only queries against the ERP tables.
// Table references are written as {t:NAME} and qualified with the configured
// schema; column identifiers are written with double quotes.
type Source struct {
	db     *gorm.DB
	schema string
}

// NewSource creates a Source. An empty schema leaves tables unqualified.
func NewSource(db *gorm.DB, schema string) *Source {
	return &Source{db: db, schema: schema}
}

// Dialect returns the name of the active gorm dialector.
func (s *Source) Dialect() string {
	return s.db.Dialector.Name()
}

// Table returns the quoted, schema qualified table name.
func (s *Source) Table(name string) string {
	if s.schema != "" {
		name = s.schema + "." + name
	}
	var b strings.Builder
	s.db.Dialector.QuoteTo(&b, name)
	return b.String()
}

// Render expands table tokens and adapts identifier quoting to the dialect.
func (s *Source) Render(query string) string {
	if s.Dialect() == "mysql" {
		query = strings.ReplaceAll(query, `"`, "`")
	}
	return tableToken.ReplaceAllStringFunc(query, func(tok string) string {
		return s.Table(tableToken.FindStringSubmatch(tok)[1])
	})
}

// AnyOf returns a membership predicate on column for one bound set.
func (s *Source) AnyOf(column string) string {
	if s.Dialect() == "postgres" {
		return column + " = ANY(?)"
	}
	return column + " IN ?"
}

// Set returns the bound argument matching AnyOf.
func (s *Source) Set(values []string) any {
	if s.Dialect() == "postgres" {
		return pq.Array(values)
	}
	return values
}

// Scan runs the rendered query and scans the rows into dest.
func (s *Source) Scan(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.WithContext(ctx).Raw(s.Render(query), args...).Scan(dest).Error
}

var dateLayouts = []string{"20060102", "2006-01-02", time.RFC3339}

// ParseDate reads an ERP date column. Dates arrive as YYYYMMDD strings, ISO
// dates or timestamps depending on the mirror. Empty and all-zero values are
// no date.
func ParseDate(v sql.NullString) (*time.Time, error) {
	raw := strings.TrimSpace(v.String)
	if !v.Valid || raw == "" || strings.Trim(raw, "0") == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	// Some drivers render DATE columns with a time part and no zone
	if len(raw) >= 10 {
		if t, err := time.Parse("2006-01-02", raw[:10]); err == nil {
			d := t.UTC()
			return &d, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", raw)
}

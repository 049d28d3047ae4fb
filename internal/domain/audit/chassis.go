// Package audit holds the chassis stock audit model: resolving true stock
// from movement history, diffing it against the audit list and shaping the
// enriched audit trail into report tables.
package audit

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/erp/stockaudit/internal/domain/shared"
)

// MaxChassisLength is the width of the serial number field in the source system.
const MaxChassisLength = 18

// AuditList is the externally maintained, ordered roster of chassis
// identifiers that are claimed to be in stock.
type AuditList []string

// Set returns the distinct identifiers of the list.
func (l AuditList) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(l))
	for _, c := range l {
		set[c] = struct{}{}
	}
	return set
}

// Len returns the number of distinct identifiers.
func (l AuditList) Len() int {
	return len(l.Set())
}

// Validate rejects identifiers that cannot be serial numbers.
func (l AuditList) Validate() error {
	for i, c := range l {
		if err := ValidateChassis(c); err != nil {
			return shared.ErrMalformedList.WithMessage(fmt.Sprintf("audit list entry %d: %s", i+1, err.Error()))
		}
	}
	return nil
}

// ValidateChassis checks a single chassis identifier.
func ValidateChassis(c string) error {
	if c == "" {
		return fmt.Errorf("empty chassis identifier")
	}
	if !utf8.ValidString(c) {
		return fmt.Errorf("chassis %q is not valid UTF-8", c)
	}
	if utf8.RuneCountInString(c) > MaxChassisLength {
		return fmt.Errorf("chassis %q exceeds %d characters", c, MaxChassisLength)
	}
	if strings.IndexFunc(c, unicode.IsSpace) >= 0 {
		return fmt.Errorf("chassis %q contains whitespace", c)
	}
	return nil
}

// StockSet is the derived set of chassis physically on hand.
type StockSet map[string]struct{}

// NewStockSet builds a set from identifiers, ignoring empty ones.
func NewStockSet(chassis ...string) StockSet {
	s := make(StockSet, len(chassis))
	for _, c := range chassis {
		if c != "" {
			s[c] = struct{}{}
		}
	}
	return s
}

// Has reports whether the chassis is in stock.
func (s StockSet) Has(chassis string) bool {
	_, ok := s[chassis]
	return ok
}

// Len returns the number of chassis in stock.
func (s StockSet) Len() int {
	return len(s)
}

// Sorted returns the members in lexicographic order.
func (s StockSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

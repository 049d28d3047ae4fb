package audit

import "sort"

// MismatchKind labels which side of the comparison a chassis is missing from.
type MismatchKind string

const (
	KindOnlyInList MismatchKind = "Only in List"
	KindOnlyInSAP  MismatchKind = "Only in SAP"
	// KindError marks the sentinel row of a failed run.
	KindError MismatchKind = "ERROR"
)

// Mismatch is a chassis present on exactly one side.
type Mismatch struct {
	Chassis string
	Kind    MismatchKind
}

// Compare returns the symmetric difference between the audit list and the
// stock set, in lexicographic order of the union. Chassis on both sides are
// not mismatches.
func Compare(list AuditList, stock StockSet) []Mismatch {
	listSet := list.Set()

	union := make([]string, 0, len(listSet)+len(stock))
	for c := range listSet {
		union = append(union, c)
	}
	for c := range stock {
		if _, ok := listSet[c]; !ok {
			union = append(union, c)
		}
	}
	sort.Strings(union)

	out := make([]Mismatch, 0)
	for _, c := range union {
		_, inList := listSet[c]
		inStock := stock.Has(c)
		switch {
		case inList && inStock:
			continue
		case inList:
			out = append(out, Mismatch{Chassis: c, Kind: KindOnlyInList})
		default:
			out = append(out, Mismatch{Chassis: c, Kind: KindOnlyInSAP})
		}
	}
	return out
}

// MismatchChassis returns the chassis of the mismatches in table order.
func MismatchChassis(ms []Mismatch) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Chassis
	}
	return out
}

// CountKind counts mismatches of one kind.
func CountKind(ms []Mismatch, kind MismatchKind) int {
	n := 0
	for _, m := range ms {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

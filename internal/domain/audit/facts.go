package audit

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/stockaudit/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Scope is a commercial context (sales organisation) under which the same
// order number space is interpreted. The first configured scope is primary.
type Scope struct {
	Name     string
	SalesOrg string
}

// DefaultScopes returns the primary and secondary sales organisations.
func DefaultScopes() []Scope {
	return []Scope{
		{Name: "3120", SalesOrg: "3120"},
		{Name: "3110", SalesOrg: "3110"},
	}
}

// Fact is one family of joined facts the enricher can attach.
type Fact string

const (
	FactSalesOrder    Fact = "sales_order"
	FactGoodsIssue    Fact = "goods_issue"
	FactBilling       Fact = "billing"
	FactPurchaseOrder Fact = "purchase_order"
	FactGoodsReceipt  Fact = "goods_receipt"
	FactBillTo        Fact = "bill_to"
	FactReceivable    Fact = "receivable"
)

// AllFacts lists every fact family in column order.
func AllFacts() []Fact {
	return []Fact{
		FactSalesOrder,
		FactGoodsIssue,
		FactBilling,
		FactPurchaseOrder,
		FactGoodsReceipt,
		FactBillTo,
		FactReceivable,
	}
}

// FactSelection is the set of enabled fact families.
type FactSelection map[Fact]bool

// NewFactSelection validates fact names. No names selects every fact.
func NewFactSelection(names ...string) (FactSelection, error) {
	sel := make(FactSelection)
	if len(names) == 0 {
		for _, f := range AllFacts() {
			sel[f] = true
		}
		return sel, nil
	}
	known := make(map[Fact]bool)
	for _, f := range AllFacts() {
		known[f] = true
	}
	for _, n := range names {
		f := Fact(n)
		if !known[f] {
			return nil, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown enrichment fact %q", n))
		}
		sel[f] = true
	}
	return sel, nil
}

// Enabled reports whether the fact family is selected.
func (s FactSelection) Enabled(f Fact) bool {
	return s[f]
}

// EnrichmentPlan parameterises the detail enricher.
type EnrichmentPlan struct {
	Scopes []Scope
	Facts  FactSelection
	Codes  MovementCodes
}

// Validate checks that the plan can produce the column contract.
func (p EnrichmentPlan) Validate() error {
	if len(p.Scopes) == 0 {
		return shared.ErrInvalidInput.WithMessage("at least one organizational scope is required")
	}
	seen := make(map[string]bool)
	for _, s := range p.Scopes {
		if s.Name == "" || s.SalesOrg == "" {
			return shared.ErrInvalidInput.WithMessage("scope name and sales organisation are required")
		}
		if seen[s.Name] {
			return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("duplicate scope %q", s.Name))
		}
		seen[s.Name] = true
	}
	return nil
}

// Primary returns the primary scope.
func (p EnrichmentPlan) Primary() Scope {
	return p.Scopes[0]
}

// SalesOrgs returns the sales organisations of all scopes in order.
func (p EnrichmentPlan) SalesOrgs() []string {
	out := make([]string, len(p.Scopes))
	for i, s := range p.Scopes {
		out[i] = s.SalesOrg
	}
	return out
}

// ChassisOrder links a serial number to an order reference through the
// serial allocation table. SalesOrder is empty when there is no allocation.
type ChassisOrder struct {
	Chassis    string
	SalesOrder string
}

// SalesOrderHeader carries the scope and purchase-order fields of an order.
type SalesOrderHeader struct {
	SalesOrder string
	SalesOrg   string
	HeaderPO   string
	CustomerPO string
}

// PurchaseOrderNumber prefers the customer-supplied PO over the header one.
func (h SalesOrderHeader) PurchaseOrderNumber() string {
	if h.CustomerPO != "" {
		return h.CustomerPO
	}
	return h.HeaderPO
}

// Invoice is a billing document raised for an order.
type Invoice struct {
	SalesOrder  string
	InvoiceNo   string
	InvoiceDate *time.Time
}

// Partner is a partner function entry of an order.
type Partner struct {
	SalesOrder string
	Customer   string
}

// GoodsReceipt is a receipt posted against a purchase order.
type GoodsReceipt struct {
	PONumber    string
	PostingDate time.Time
}

// Receivable is the open receivable balance of a customer.
type Receivable struct {
	Customer string
	Amount   decimal.Decimal
}

// FactSet holds every row fetched for one enrichment run.
type FactSet struct {
	Orders      []ChassisOrder
	Headers     []SalesOrderHeader
	Movements   []Movement
	Invoices    []Invoice
	BillTo      []Partner
	Receipts    []GoodsReceipt
	Receivables []Receivable
}

// OrderRefs returns the distinct, non-empty order references, sorted.
func OrderRefs(orders []ChassisOrder) []string {
	set := make(map[string]struct{})
	for _, o := range orders {
		if o.SalesOrder != "" {
			set[o.SalesOrder] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// ScopedOrders splits headers into primary-scope orders and orders of any scope.
func (p EnrichmentPlan) ScopedOrders(headers []SalesOrderHeader) (primary, all []string) {
	orgs := make(map[string]bool)
	for _, s := range p.Scopes {
		orgs[s.SalesOrg] = true
	}
	primarySet := make(map[string]struct{})
	allSet := make(map[string]struct{})
	for _, h := range headers {
		if !orgs[h.SalesOrg] {
			continue
		}
		allSet[h.SalesOrder] = struct{}{}
		if h.SalesOrg == p.Primary().SalesOrg {
			primarySet[h.SalesOrder] = struct{}{}
		}
	}
	return sortedKeys(primarySet), sortedKeys(allSet)
}

// PONumbers returns the distinct non-empty PO numbers of primary-scope orders.
func (p EnrichmentPlan) PONumbers(headers []SalesOrderHeader) []string {
	set := make(map[string]struct{})
	for _, h := range headers {
		if h.SalesOrg != p.Primary().SalesOrg {
			continue
		}
		if po := h.PurchaseOrderNumber(); po != "" {
			set[po] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Customers returns the distinct partner customers.
func Customers(partners []Partner) []string {
	set := make(map[string]struct{})
	for _, p := range partners {
		if p.Customer != "" {
			set[p.Customer] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package audit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan(t *testing.T, facts ...string) EnrichmentPlan {
	t.Helper()
	sel, err := NewFactSelection(facts...)
	require.NoError(t, err)
	return EnrichmentPlan{Scopes: DefaultScopes(), Facts: sel, Codes: DefaultMovementCodes()}
}

func testFacts() FactSet {
	invDate := day("2024-01-15")
	return FactSet{
		Orders: []ChassisOrder{
			{Chassis: "C1", SalesOrder: "SO1"},
			{Chassis: "C1", SalesOrder: "SO9"},
			{Chassis: "C1", SalesOrder: "SO1"},
		},
		Headers: []SalesOrderHeader{
			{SalesOrder: "SO1", SalesOrg: "3120", HeaderPO: "PO-H", CustomerPO: "PO1"},
			{SalesOrder: "SO9", SalesOrg: "3110"},
		},
		Movements: []Movement{
			{OrderRef: "SO1", Type: "101", PostingDate: day("2024-01-02"), DocNumber: "5000000001"},
			{OrderRef: "SO1", Type: "601", PostingDate: day("2024-01-10"), DocNumber: "4900000001"},
			{OrderRef: "SO1", Type: "602", PostingDate: day("2024-01-11"), DocNumber: "4900000002"},
		},
		Invoices: []Invoice{{SalesOrder: "SO1", InvoiceNo: "9000000001", InvoiceDate: &invDate}},
		BillTo: []Partner{
			{SalesOrder: "SO1", Customer: "CUST1"},
			{SalesOrder: "SO9", Customer: "CUST9"},
		},
		Receipts: []GoodsReceipt{{PONumber: "PO1", PostingDate: day("2024-01-03")}},
		Receivables: []Receivable{
			{Customer: "CUST1", Amount: decimal.RequireFromString("100.50")},
			{Customer: "CUST1", Amount: decimal.RequireFromString("-20.25")},
			{Customer: "CUST9", Amount: decimal.RequireFromString("5")},
		},
	}
}

func TestDetailColumns(t *testing.T) {
	cols := DetailColumns(DefaultScopes())
	assert.Equal(t, []string{
		"Chassis", "Mismatch_Type", "SalesOrder_3120", "SalesOrder_3110",
		"SalesOrderPGI_Doc", "PGI_Date", "Has_Reversal", "Last_Is_PGI",
		"Invoice_No", "Invoice_Date", "PO_Number", "PO_Count", "GR_Date",
		"Inventory_In_Date", "BillTo_3120", "BillTo_3110", "AR_Amount",
	}, cols)
}

func TestAssembleDetails(t *testing.T) {
	ms := []Mismatch{
		{Chassis: "C1", Kind: KindOnlyInList},
		{Chassis: "C2", Kind: KindOnlyInSAP},
	}

	t.Run("joins every fact family", func(t *testing.T) {
		details := AssembleDetails(ms, testFacts(), testPlan(t))
		require.Len(t, details, 2)

		d := details[0]
		assert.Equal(t, "C1", d.Chassis)
		assert.Equal(t, KindOnlyInList, d.MismatchType)
		require.Len(t, d.SalesOrders, 2)
		assert.Equal(t, "SO1", *d.SalesOrders[0])
		assert.Equal(t, "SO9", *d.SalesOrders[1])
		assert.Equal(t, "4900000001", *d.PGIDoc)
		assert.Equal(t, day("2024-01-10"), *d.PGIDate)
		assert.True(t, *d.HasReversal)
		assert.False(t, *d.LastIsPGI)
		assert.Equal(t, "9000000001", *d.InvoiceNo)
		assert.Equal(t, day("2024-01-15"), *d.InvoiceDate)
		assert.Equal(t, "PO1", *d.PONumber)
		assert.Equal(t, 1, *d.POCount)
		assert.Equal(t, day("2024-01-03"), *d.GRDate)
		assert.Equal(t, day("2024-01-02"), *d.InventoryInDate)
		assert.Equal(t, "CUST1", *d.BillTo[0])
		assert.Equal(t, "CUST9", *d.BillTo[1])
		require.NotNil(t, d.ARAmount)
		assert.True(t, d.ARAmount.Equal(decimal.RequireFromString("80.25")))
	})

	t.Run("chassis without orders keeps a null row", func(t *testing.T) {
		details := AssembleDetails(ms, testFacts(), testPlan(t))
		d := details[1]
		assert.Equal(t, "C2", d.Chassis)
		assert.Equal(t, KindOnlyInSAP, d.MismatchType)
		assert.Nil(t, d.PGIDoc)
		assert.Nil(t, d.HasReversal)
		assert.Nil(t, d.LastIsPGI)
		assert.Nil(t, d.POCount)
		assert.Nil(t, d.ARAmount)
		assert.Equal(t, []*string{nil, nil}, d.SalesOrders)
		assert.Equal(t, []*string{nil, nil}, d.BillTo)

		values := d.Values()
		assert.Len(t, values, len(DetailColumns(DefaultScopes())))
		for _, v := range values[2:] {
			assert.Nil(t, v)
		}
	})

	t.Run("no mismatches yields no rows", func(t *testing.T) {
		details := AssembleDetails([]Mismatch{}, testFacts(), testPlan(t))
		assert.NotNil(t, details)
		assert.Empty(t, details)
	})

	t.Run("last goods issue sets Last_Is_PGI", func(t *testing.T) {
		facts := testFacts()
		facts.Movements = append(facts.Movements,
			Movement{OrderRef: "SO1", Type: "601", PostingDate: day("2024-01-20"), DocNumber: "4900000003"})
		d := AssembleDetails(ms[:1], facts, testPlan(t))[0]
		assert.True(t, *d.LastIsPGI)
		assert.Equal(t, "4900000003", *d.PGIDoc)
		assert.Equal(t, day("2024-01-20"), *d.PGIDate)
	})

	t.Run("primary order without movements reports no reversal", func(t *testing.T) {
		facts := testFacts()
		facts.Movements = nil
		d := AssembleDetails(ms[:1], facts, testPlan(t))[0]
		assert.False(t, *d.HasReversal)
		assert.Nil(t, d.LastIsPGI)
		assert.Nil(t, d.PGIDate)
	})

	t.Run("disabled facts stay null", func(t *testing.T) {
		d := AssembleDetails(ms[:1], testFacts(), testPlan(t, "sales_order"))[0]
		assert.Equal(t, "SO1", *d.SalesOrders[0])
		assert.Nil(t, d.PGIDoc)
		assert.Nil(t, d.InvoiceNo)
		assert.Nil(t, d.POCount)
		assert.Nil(t, d.GRDate)
		assert.Nil(t, d.BillTo[0])
		assert.Nil(t, d.ARAmount)
	})

	t.Run("receivable follows the primary bill-to only", func(t *testing.T) {
		facts := testFacts()
		facts.BillTo = facts.BillTo[1:]
		d := AssembleDetails(ms[:1], facts, testPlan(t))[0]
		assert.Nil(t, d.BillTo[0])
		require.NotNil(t, d.BillTo[1])
		assert.Equal(t, "CUST9", *d.BillTo[1])
		assert.Nil(t, d.ARAmount)
	})

	t.Run("receivable does not depend on other mismatches", func(t *testing.T) {
		facts := testFacts()
		facts.Orders = append(facts.Orders, ChassisOrder{Chassis: "Z1", SalesOrder: "SO7"})
		facts.Headers = append(facts.Headers, SalesOrderHeader{SalesOrder: "SO7", SalesOrg: "3110"})
		facts.BillTo = append(facts.BillTo, Partner{SalesOrder: "SO7", Customer: "CUST1"})
		both := []Mismatch{ms[0], {Chassis: "Z1", Kind: KindOnlyInSAP}}

		alone := AssembleDetails(both[1:], facts, testPlan(t))[0]
		together := AssembleDetails(both, facts, testPlan(t))[1]
		assert.Nil(t, alone.ARAmount)
		assert.Nil(t, together.ARAmount)
		assert.Equal(t, "CUST1", *together.BillTo[1])
	})

	t.Run("GR date belongs to the reported PO", func(t *testing.T) {
		facts := testFacts()
		facts.Orders = append(facts.Orders, ChassisOrder{Chassis: "C1", SalesOrder: "SO2"})
		facts.Headers = append(facts.Headers, SalesOrderHeader{SalesOrder: "SO2", SalesOrg: "3120", CustomerPO: "PO2"})
		d := AssembleDetails(ms[:1], facts, testPlan(t))[0]
		assert.Equal(t, "PO2", *d.PONumber)
		assert.Equal(t, 2, *d.POCount)
		assert.Nil(t, d.GRDate)

		s := BuildSummary(AuditList{"C1"}, NewStockSet(), ms[:1], []Detail{d})
		assert.Equal(t, 1, s.POTotal)
		assert.Equal(t, 0, s.POGRDone)
		assert.Equal(t, 1, s.PONotGR)
	})

	t.Run("GR date of the reported PO when it was received", func(t *testing.T) {
		facts := testFacts()
		facts.Orders = append(facts.Orders, ChassisOrder{Chassis: "C1", SalesOrder: "SO2"})
		facts.Headers = append(facts.Headers, SalesOrderHeader{SalesOrder: "SO2", SalesOrg: "3120", CustomerPO: "PO2"})
		facts.Receipts = append(facts.Receipts, GoodsReceipt{PONumber: "PO2", PostingDate: day("2024-01-01")})
		d := AssembleDetails(ms[:1], facts, testPlan(t))[0]
		require.NotNil(t, d.GRDate)
		assert.Equal(t, day("2024-01-01"), *d.GRDate)
	})
}

func TestBuildStatistics(t *testing.T) {
	ms := []Mismatch{
		{Chassis: "C1", Kind: KindOnlyInList},
		{Chassis: "C2", Kind: KindOnlyInSAP},
	}
	stats := BuildStatistics(ms, testFacts(), testPlan(t))
	require.Len(t, stats, 2)

	s := stats[0]
	assert.Equal(t, 1, s.SalesOrderCount)
	assert.Equal(t, 1, s.PGICount)
	assert.Equal(t, 1, s.ReverseCount)
	assert.Equal(t, day("2024-01-11"), *s.LastMovementDate)
	assert.Equal(t, MovementType("602"), *s.LastMovementType)

	empty := stats[1]
	assert.Equal(t, 0, empty.SalesOrderCount)
	assert.Nil(t, empty.LastMovementDate)
	assert.Equal(t, []any{"C2", 0, 0, 0, nil, nil, "Only in SAP"}, empty.Values())
}

func TestNewFactSelection(t *testing.T) {
	sel, err := NewFactSelection()
	require.NoError(t, err)
	for _, f := range AllFacts() {
		assert.True(t, sel.Enabled(f))
	}

	_, err = NewFactSelection("sales_order", "unknown")
	assert.Error(t, err)
}

func TestEnrichmentPlan(t *testing.T) {
	plan := testPlan(t)
	require.NoError(t, plan.Validate())
	assert.Equal(t, []string{"3120", "3110"}, plan.SalesOrgs())

	primary, all := plan.ScopedOrders(append(testFacts().Headers, SalesOrderHeader{SalesOrder: "SO5", SalesOrg: "9999"}))
	assert.Equal(t, []string{"SO1"}, primary)
	assert.Equal(t, []string{"SO1", "SO9"}, all)
	assert.Equal(t, []string{"PO1"}, plan.PONumbers(testFacts().Headers))

	t.Run("duplicate scope is rejected", func(t *testing.T) {
		bad := plan
		bad.Scopes = []Scope{{Name: "A", SalesOrg: "1"}, {Name: "A", SalesOrg: "2"}}
		assert.Error(t, bad.Validate())
	})

	t.Run("no scope is rejected", func(t *testing.T) {
		bad := plan
		bad.Scopes = nil
		assert.Error(t, bad.Validate())
	})
}

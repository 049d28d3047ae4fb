//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMirrorSource starts PostgreSQL, loads the ERP mirror fixture and
// returns a Source over it.
func newMirrorSource(t *testing.T) *Source {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("sap"),
		tcpostgres.WithUsername("audit"),
		tcpostgres.WithPassword("audit"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err)
	m, err := migrate.NewWithDatabaseInstance("file://testdata/migrations", "postgres", driver)
	require.NoError(t, err)
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to load fixture")
	}

	return NewSource(db, "SAPHANADB")
}

func TestIntegration_StockResolution(t *testing.T) {
	src := newMirrorSource(t)
	repo := NewGormStockRepository(src)
	ctx := context.Background()
	codes := audit.DefaultMovementCodes()

	candidates, err := repo.FindStockCandidates(ctx, audit.StockFilter{Plant: "3211", StorageLocation: "0002", MaterialPrefix: "Z12"})
	require.NoError(t, err)
	assert.Len(t, candidates, 3)

	moves, err := repo.FindMovementsByType(ctx, codes.StockRelevant())
	require.NoError(t, err)
	assert.Len(t, moves, 3)

	stock := audit.ResolveStock(candidates, moves, codes)
	assert.Equal(t, []string{"C1", "C3"}, stock.Sorted())
}

func TestIntegration_Facts(t *testing.T) {
	src := newMirrorSource(t)
	repo := NewGormFactRepository(src)
	ctx := context.Background()

	orders, err := repo.FindChassisOrders(ctx, []string{"C1", "C3", "UNKNOWN"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []audit.ChassisOrder{
		{Chassis: "C1", SalesOrder: "0010000001"},
		{Chassis: "C3", SalesOrder: "0010000003"},
	}, orders)

	headers, err := repo.FindSalesOrders(ctx, audit.OrderRefs(orders), []string{"3120", "3110"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []audit.SalesOrderHeader{
		{SalesOrder: "0010000001", SalesOrg: "3120", HeaderPO: "HDR-PO1", CustomerPO: "4500000001"},
		{SalesOrder: "0010000003", SalesOrg: "3110"},
	}, headers)

	moves, err := repo.FindMovementsByOrders(ctx, []string{"0010000001"})
	require.NoError(t, err)
	require.Len(t, moves, 3)
	assert.Equal(t, audit.DefaultGoodsReceipt, moves[0].Type)

	invoices, err := repo.FindInvoices(ctx, []string{"0010000001"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "9000000001", invoices[0].InvoiceNo)

	partners, err := repo.FindPartners(ctx, []string{"0010000001", "0010000003"}, "RE")
	require.NoError(t, err)
	assert.ElementsMatch(t, []audit.Partner{
		{SalesOrder: "0010000001", Customer: "CUST1"},
		{SalesOrder: "0010000003", Customer: "CUST3"},
	}, partners)

	receipts, err := repo.FindGoodsReceipts(ctx, []string{"4500000001"})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), receipts[0].PostingDate)

	receivables, err := repo.FindReceivables(ctx, []string{"CUST1"})
	require.NoError(t, err)
	total := decimal.Zero
	for _, r := range receivables {
		total = total.Add(r.Amount)
	}
	assert.True(t, decimal.RequireFromString("80.25").Equal(total))
}

package audit

import (
	"context"
	"time"

	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/stretchr/testify/mock"
)

// MockStockRepository is a mock implementation of audit.StockRepository
type MockStockRepository struct {
	mock.Mock
}

func (m *MockStockRepository) FindStockCandidates(ctx context.Context, filter audit.StockFilter) ([]audit.StockCandidate, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.StockCandidate), args.Error(1)
}

func (m *MockStockRepository) FindMovementsByType(ctx context.Context, types []audit.MovementType) ([]audit.Movement, error) {
	args := m.Called(ctx, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Movement), args.Error(1)
}

// MockFactRepository is a mock implementation of audit.FactRepository
type MockFactRepository struct {
	mock.Mock
}

func (m *MockFactRepository) FindChassisOrders(ctx context.Context, chassis []string) ([]audit.ChassisOrder, error) {
	args := m.Called(ctx, chassis)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.ChassisOrder), args.Error(1)
}

func (m *MockFactRepository) FindSalesOrders(ctx context.Context, orders []string, salesOrgs []string) ([]audit.SalesOrderHeader, error) {
	args := m.Called(ctx, orders, salesOrgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.SalesOrderHeader), args.Error(1)
}

func (m *MockFactRepository) FindMovementsByOrders(ctx context.Context, orders []string) ([]audit.Movement, error) {
	args := m.Called(ctx, orders)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Movement), args.Error(1)
}

func (m *MockFactRepository) FindInvoices(ctx context.Context, orders []string) ([]audit.Invoice, error) {
	args := m.Called(ctx, orders)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Invoice), args.Error(1)
}

func (m *MockFactRepository) FindPartners(ctx context.Context, orders []string, role string) ([]audit.Partner, error) {
	args := m.Called(ctx, orders, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Partner), args.Error(1)
}

func (m *MockFactRepository) FindGoodsReceipts(ctx context.Context, poNumbers []string) ([]audit.GoodsReceipt, error) {
	args := m.Called(ctx, poNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.GoodsReceipt), args.Error(1)
}

func (m *MockFactRepository) FindReceivables(ctx context.Context, customers []string) ([]audit.Receivable, error) {
	args := m.Called(ctx, customers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Receivable), args.Error(1)
}

// MockAuditor is a mock implementation of Auditor
type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Run(ctx context.Context, list audit.AuditList) audit.Outcome {
	args := m.Called(ctx, list)
	return args.Get(0).(audit.Outcome)
}

// MockArtifactStore is a mock implementation of ArtifactStore
type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *MockArtifactStore) DownloadURL(ctx context.Context, key string) (string, time.Time, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/erp/stockaudit/internal/domain/shared"
	"github.com/erp/stockaudit/internal/infrastructure/logger"
	"github.com/erp/stockaudit/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source query names, used as the query attribute of spans and metrics.
const (
	queryStockCandidates = "stock_candidates"
	queryStockMovements  = "stock_movements"
	queryChassisOrders   = "chassis_orders"
	querySalesOrders     = "sales_orders"
	queryOrderMovements  = "order_movements"
	queryInvoices        = "invoices"
	queryPartners        = "partners"
	queryGoodsReceipts   = "goods_receipts"
	queryReceivables     = "receivables"
)

// Service runs the audit pipeline: stock resolution, set comparison,
// detail enrichment and report assembly.
type Service struct {
	stockRepo audit.StockRepository
	factRepo  audit.FactRepository
	settings  Settings
	metrics   *telemetry.AuditMetrics
	logger    *zap.Logger
}

// NewService creates a new Service
func NewService(
	stockRepo audit.StockRepository,
	factRepo audit.FactRepository,
	settings Settings,
	logger *zap.Logger,
) (*Service, error) {
	if err := settings.Plan.Validate(); err != nil {
		return nil, err
	}
	if settings.MaxParallelQueries < 1 {
		settings.MaxParallelQueries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		stockRepo: stockRepo,
		factRepo:  factRepo,
		settings:  settings,
		logger:    logger,
	}, nil
}

// SetMetrics sets the run metrics recorder (optional)
func (s *Service) SetMetrics(m *telemetry.AuditMetrics) {
	s.metrics = m
}

// Run audits the list against the source system. It never returns partial
// tables: any stage failure yields the degraded fallback outcome.
func (s *Service) Run(ctx context.Context, list audit.AuditList) audit.Outcome {
	start := time.Now()

	ctx, span := telemetry.StartRun(ctx, logger.GetRunID(ctx), list.Len())
	log := s.runLogger(ctx)

	tables, err := s.run(ctx, list, log)
	telemetry.End(span, err)
	if err != nil {
		log.Error("Audit run failed, writing degraded report",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		s.metrics.RecordRun(ctx, telemetry.ResultDegraded, time.Since(start))
		return audit.Fallback(list, s.settings.Plan.Scopes, err)
	}

	log.Info("Audit run completed",
		zap.Int("list_total", tables.Summary.ListTotal),
		zap.Int("sap_total", tables.Summary.SAPTotal),
		zap.Int("mismatch_total", tables.Summary.MismatchTotal),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.metrics.RecordRun(ctx, telemetry.ResultSuccess, time.Since(start))
	return audit.Succeeded(tables)
}

func (s *Service) run(ctx context.Context, list audit.AuditList, log *zap.Logger) (audit.Tables, error) {
	if err := list.Validate(); err != nil {
		return audit.Tables{}, audit.NewStageError(audit.StageAuditList, err)
	}

	stock, err := s.resolveStock(ctx)
	if err != nil {
		return audit.Tables{}, audit.NewStageError(audit.StageStockResolver, err)
	}
	log.Debug("Stock resolved", zap.Int("stock", stock.Len()))

	mismatches := s.compare(ctx, list, stock)
	log.Debug("Sets compared", zap.Int("mismatches", len(mismatches)))

	facts, err := s.enrich(ctx, mismatches)
	if err != nil {
		return audit.Tables{}, audit.NewStageError(audit.StageDetailEnricher, err)
	}

	plan := s.settings.Plan
	details := audit.AssembleDetails(mismatches, facts, plan)
	tables := audit.Tables{
		Scopes:            plan.Scopes,
		Summary:           audit.BuildSummary(list, stock, mismatches, details),
		Mismatches:        mismatches,
		Details:           details,
		IncludeStatistics: s.settings.IncludeStatistics,
	}
	if s.settings.IncludeStatistics {
		tables.Statistics = audit.BuildStatistics(mismatches, facts, plan)
	}
	return tables, nil
}

// resolveStock fetches candidates and stock-relevant movements and derives
// the set of chassis on hand.
func (s *Service) resolveStock(ctx context.Context) (stock audit.StockSet, err error) {
	ctx, span := telemetry.StartStage(ctx, string(audit.StageStockResolver))
	defer func() { telemetry.End(span, err) }()

	var (
		candidates []audit.StockCandidate
		moves      []audit.Movement
	)
	codes := s.settings.Plan.Codes

	g, gctx := s.phase(ctx)
	g.Go(func() (err error) {
		candidates, err = query(gctx, s, queryStockCandidates, 1, func(ctx context.Context) ([]audit.StockCandidate, error) {
			return s.stockRepo.FindStockCandidates(ctx, s.settings.Filter)
		})
		return err
	})
	g.Go(func() (err error) {
		moves, err = query(gctx, s, queryStockMovements, len(codes.StockRelevant()), func(ctx context.Context) ([]audit.Movement, error) {
			return s.stockRepo.FindMovementsByType(ctx, codes.StockRelevant())
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stock = audit.ResolveStock(candidates, moves, codes)
	span.SetAttributes(telemetry.AttrStockCount.Int(stock.Len()))
	return stock, nil
}

func (s *Service) compare(ctx context.Context, list audit.AuditList, stock audit.StockSet) []audit.Mismatch {
	ctx, span := telemetry.StartStage(ctx, string(audit.StageSetComparator))
	defer telemetry.End(span, nil)

	mismatches := audit.Compare(list, stock)
	span.SetAttributes(telemetry.AttrMismatches.Int(len(mismatches)))
	s.metrics.RecordMismatches(ctx, string(audit.KindOnlyInList), audit.CountKind(mismatches, audit.KindOnlyInList))
	s.metrics.RecordMismatches(ctx, string(audit.KindOnlyInSAP), audit.CountKind(mismatches, audit.KindOnlyInSAP))
	return mismatches
}

// enrich fetches the facts of the mismatched chassis in four dependent
// phases. Queries inside a phase are independent and may run concurrently.
func (s *Service) enrich(ctx context.Context, mismatches []audit.Mismatch) (audit.FactSet, error) {
	var facts audit.FactSet
	if len(mismatches) == 0 {
		return facts, nil
	}

	ctx, span := telemetry.StartStage(ctx, string(audit.StageDetailEnricher),
		telemetry.AttrKeyCount.Int(len(mismatches)),
	)
	err := s.collectFacts(ctx, mismatches, &facts)
	telemetry.End(span, err)
	if err != nil {
		return audit.FactSet{}, err
	}
	return facts, nil
}

func (s *Service) collectFacts(ctx context.Context, mismatches []audit.Mismatch, facts *audit.FactSet) error {
	plan := s.settings.Plan
	enabled := plan.Facts.Enabled

	chassis := audit.MismatchChassis(mismatches)
	orders, err := query(ctx, s, queryChassisOrders, len(chassis), func(ctx context.Context) ([]audit.ChassisOrder, error) {
		return s.factRepo.FindChassisOrders(ctx, chassis)
	})
	if err != nil {
		return err
	}
	facts.Orders = orders

	refs := audit.OrderRefs(orders)
	if len(refs) == 0 {
		return nil
	}
	headers, err := query(ctx, s, querySalesOrders, len(refs), func(ctx context.Context) ([]audit.SalesOrderHeader, error) {
		return s.factRepo.FindSalesOrders(ctx, refs, plan.SalesOrgs())
	})
	if err != nil {
		return err
	}
	facts.Headers = headers

	primary, all := plan.ScopedOrders(headers)
	needPartners := enabled(audit.FactBillTo) || enabled(audit.FactReceivable)

	g, gctx := s.phase(ctx)
	if enabled(audit.FactGoodsIssue) || s.settings.IncludeStatistics {
		g.Go(func() (err error) {
			facts.Movements, err = query(gctx, s, queryOrderMovements, len(primary), func(ctx context.Context) ([]audit.Movement, error) {
				return s.factRepo.FindMovementsByOrders(ctx, primary)
			})
			return err
		})
	}
	if enabled(audit.FactBilling) {
		g.Go(func() (err error) {
			facts.Invoices, err = query(gctx, s, queryInvoices, len(primary), func(ctx context.Context) ([]audit.Invoice, error) {
				return s.factRepo.FindInvoices(ctx, primary)
			})
			return err
		})
	}
	if needPartners {
		g.Go(func() (err error) {
			facts.BillTo, err = query(gctx, s, queryPartners, len(all), func(ctx context.Context) ([]audit.Partner, error) {
				return s.factRepo.FindPartners(ctx, all, s.settings.BillToRole)
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx = s.phase(ctx)
	if enabled(audit.FactGoodsReceipt) {
		poNumbers := plan.PONumbers(headers)
		g.Go(func() (err error) {
			facts.Receipts, err = query(gctx, s, queryGoodsReceipts, len(poNumbers), func(ctx context.Context) ([]audit.GoodsReceipt, error) {
				return s.factRepo.FindGoodsReceipts(ctx, poNumbers)
			})
			return err
		})
	}
	if enabled(audit.FactReceivable) {
		customers := primaryCustomers(facts.BillTo, primary)
		g.Go(func() (err error) {
			facts.Receivables, err = query(gctx, s, queryReceivables, len(customers), func(ctx context.Context) ([]audit.Receivable, error) {
				return s.factRepo.FindReceivables(ctx, customers)
			})
			return err
		})
	}
	return g.Wait()
}

// phase returns an errgroup bounded by the configured query parallelism.
func (s *Service) phase(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.MaxParallelQueries)
	return g, gctx
}

// runLogger tags the service logger with the run ID and the active span.
func (s *Service) runLogger(ctx context.Context) *zap.Logger {
	log := s.logger
	if runID := logger.GetRunID(ctx); runID != "" {
		log = log.With(zap.String("run_id", runID))
	}
	return logger.WithTraceContext(ctx, log)
}

// query runs one source query under the configured timeout, tracing and
// timing it. A deadline hit is reported as shared.ErrQueryTimeout.
func query[T any](ctx context.Context, s *Service, name string, keys int, fn func(ctx context.Context) ([]T, error)) ([]T, error) {
	if s.settings.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.QueryTimeout)
		defer cancel()
	}
	ctx, span := telemetry.StartQuery(logger.WithQuery(ctx, name), name, keys)

	start := time.Now()
	rows, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		err = fmt.Errorf("%s query after %s: %w", name, s.settings.QueryTimeout, shared.ErrQueryTimeout)
	}
	s.metrics.RecordQuery(ctx, name, elapsed, err)
	if err != nil {
		telemetry.End(span, err)
		return nil, err
	}

	span.SetAttributes(telemetry.AttrRowCount.Int(len(rows)))
	telemetry.End(span, nil)
	s.runLogger(ctx).Debug("Source query finished",
		zap.String("query", name),
		zap.Int("keys", keys),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", elapsed),
	)
	return rows, nil
}

// primaryCustomers returns the bill-to customers of primary-scope orders.
func primaryCustomers(partners []audit.Partner, primary []string) []string {
	inPrimary := make(map[string]bool, len(primary))
	for _, o := range primary {
		inPrimary[o] = true
	}
	var scoped []audit.Partner
	for _, p := range partners {
		if inPrimary[p.SalesOrder] {
			scoped = append(scoped, p)
		}
	}
	return audit.Customers(scoped)
}

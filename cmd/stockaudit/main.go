package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	auditapp "github.com/erp/stockaudit/internal/application/audit"
	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/erp/stockaudit/internal/infrastructure/config"
	"github.com/erp/stockaudit/internal/infrastructure/listfile"
	"github.com/erp/stockaudit/internal/infrastructure/logger"
	"github.com/erp/stockaudit/internal/infrastructure/persistence"
	"github.com/erp/stockaudit/internal/infrastructure/storage"
	"github.com/erp/stockaudit/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile string
		output     string
		listFile   string
		logLevel   string
	)
	flag.StringVar(&configFile, "config", "", "Path to config file (default: ./config.toml)")
	flag.StringVar(&output, "output", "", "Report path (overrides report.output)")
	flag.StringVar(&listFile, "list", "", "Audit list file (overrides audit.list_file)")
	flag.StringVar(&logLevel, "log-level", "", "Log level (overrides log.level)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return auditapp.ExitNoReport
	}
	if output != "" {
		cfg.Report.Output = output
	}
	if listFile != "" {
		cfg.Audit.ListFile = listFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	// Initialize logger
	baseLog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return auditapp.ExitNoReport
	}
	defer func() {
		_ = baseLog.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry providers
	providers, err := telemetry.Setup(ctx, telemetry.ConfigFrom(cfg.Telemetry, cfg.App.Version), baseLog)
	if err != nil {
		baseLog.Error("Failed to initialize telemetry", zap.Error(err))
		return auditapp.ExitNoReport
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			baseLog.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	log := providers.Bridge(baseLog, logger.ParseLevel(cfg.Log.Level))

	runID := uuid.NewString()
	ctx, log = logger.WithRunID(ctx, log, runID)
	log.Info("Starting stock audit",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("driver", cfg.Database.Driver),
		zap.String("schema", cfg.Database.Schema),
		zap.String("output", cfg.Report.Output),
	)

	list, err := loadAuditList(cfg)
	if err != nil {
		log.Error("Failed to load audit list", zap.Error(err))
		return auditapp.ExitNoReport
	}

	settings, err := auditapp.SettingsFromConfig(cfg)
	if err != nil {
		log.Error("Invalid audit settings", zap.Error(err))
		return auditapp.ExitNoReport
	}

	// A source that cannot be reached still gets a degraded report
	var auditor auditapp.Auditor
	db, err := connect(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to connect to source database", zap.Error(err))
		auditor = unavailableAuditor{scopes: settings.Plan.Scopes, err: err}
	} else {
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()

		src := persistence.NewSource(db.DB, cfg.Database.Schema)
		svc, err := auditapp.NewService(
			persistence.NewGormStockRepository(src),
			persistence.NewGormFactRepository(src),
			settings,
			log,
		)
		if err != nil {
			log.Error("Failed to create audit service", zap.Error(err))
			return auditapp.ExitNoReport
		}
		metrics, err := telemetry.NewAuditMetrics(providers.Meter())
		if err != nil {
			log.Warn("Audit metrics unavailable", zap.Error(err))
		} else {
			svc.SetMetrics(metrics)
		}
		auditor = svc
	}

	runner := auditapp.NewRunner(auditor, cfg.Report.Output, log)
	if cfg.Storage.Enabled {
		store, err := newArtifactStore(ctx, &cfg.Storage, log)
		if err != nil {
			log.Error("Artifact upload disabled", zap.Error(err))
		} else {
			runner.SetArtifactStore(store, cfg.Storage.Prefix)
		}
	}

	result, err := runner.Execute(ctx, runID, list)
	if err != nil {
		log.Error("Failed to write report", zap.Error(err))
		return auditapp.ExitNoReport
	}
	return result.ExitCode()
}

// newArtifactStore opens the upload target, creating the bucket when configured to.
func newArtifactStore(ctx context.Context, cfg *config.StorageConfig, log *zap.Logger) (*storage.S3ArtifactStore, error) {
	store, err := storage.NewS3ArtifactStore(ctx, cfg, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if cfg.CreateBucket {
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// loadAuditList merges audit.chassis with the entries of audit.list_file,
// keeping first-seen order.
func loadAuditList(cfg *config.Config) (audit.AuditList, error) {
	list := append(audit.AuditList{}, cfg.Audit.Chassis...)
	if cfg.Audit.ListFile != "" {
		fromFile, err := listfile.Load(cfg.Audit.ListFile)
		if err != nil {
			return nil, err
		}
		list = append(list, fromFile...)
	}
	return list, nil
}

func connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	sqlLog := logger.NewSQLLogger(log, logger.ParseSQLLevel(cfg.Log.SQLLevel), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithLogger(ctx, &cfg.Database, sqlLog)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		tracing := telemetry.SourceTracing{
			DBSystem:   dbSystem(cfg.Database.Driver),
			BindValues: cfg.Telemetry.DBLogFullSQL,
			Slow:       cfg.Telemetry.DBSlowQueryThresh,
		}
		if err := tracing.Register(db.DB); err != nil {
			log.Warn("Source statement tracing unavailable", zap.Error(err))
		}
	}

	log.Info("Source database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("dbname", cfg.Database.DBName),
	)
	return db, nil
}

func dbSystem(driver string) string {
	switch driver {
	case config.DriverMySQL:
		return "mysql"
	case config.DriverSQLite:
		return "sqlite"
	default:
		return "postgresql"
	}
}

// unavailableAuditor reports every run as failed on connectivity.
type unavailableAuditor struct {
	scopes []audit.Scope
	err    error
}

func (a unavailableAuditor) Run(_ context.Context, list audit.AuditList) audit.Outcome {
	return audit.Fallback(list, a.scopes, audit.NewStageError(audit.StageStockResolver, a.err))
}

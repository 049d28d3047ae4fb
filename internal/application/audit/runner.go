package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/erp/stockaudit/internal/infrastructure/export"
	"github.com/erp/stockaudit/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// Process exit codes of an audit run.
const (
	ExitSuccess  = 0
	ExitNoReport = 1
	ExitDegraded = 2
)

// Auditor produces the outcome of one audit run.
type Auditor interface {
	Run(ctx context.Context, list audit.AuditList) audit.Outcome
}

// ArtifactStore keeps a copy of finished reports.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	DownloadURL(ctx context.Context, key string) (string, time.Time, error)
}

// Result describes a finished run whose report was written.
type Result struct {
	Outcome     audit.Outcome
	Path        string
	Key         string
	DownloadURL string
}

// ExitCode maps the result to the process exit status.
func (r Result) ExitCode() int {
	if r.Outcome.Failed() {
		return ExitDegraded
	}
	return ExitSuccess
}

// Runner runs an audit and writes its report, uploading a copy when a
// store is configured.
type Runner struct {
	auditor Auditor
	output  string
	store   ArtifactStore
	prefix  string
	logger  *zap.Logger
}

// NewRunner creates a new Runner writing the report to output
func NewRunner(auditor Auditor, output string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		auditor: auditor,
		output:  output,
		logger:  logger,
	}
}

// SetArtifactStore enables upload of the report under prefix
func (r *Runner) SetArtifactStore(store ArtifactStore, prefix string) {
	r.store = store
	r.prefix = prefix
}

// Execute runs the audit and writes the report. An error means no report
// could be written; a degraded report is not an error.
func (r *Runner) Execute(ctx context.Context, runID string, list audit.AuditList) (Result, error) {
	outcome := r.auditor.Run(ctx, list)
	result := Result{Outcome: outcome, Path: r.output}

	data, err := export.Encode(outcome.Tables.Sheets())
	if err != nil {
		return result, fmt.Errorf("render report: %w", err)
	}
	if err := export.WriteFile(r.output, data); err != nil {
		return result, err
	}
	r.logger.Info("Report written",
		zap.String("path", r.output),
		zap.Int("bytes", len(data)),
		zap.Bool("degraded", outcome.Failed()),
	)

	if r.store == nil {
		return result, nil
	}
	key := storage.ArtifactKey(r.prefix, runID, r.output)
	if err := r.store.Upload(ctx, key, data, export.ContentType); err != nil {
		r.logger.Error("Failed to upload report", zap.String("key", key), zap.Error(err))
		return result, nil
	}
	result.Key = key

	url, expiresAt, err := r.store.DownloadURL(ctx, key)
	if err != nil {
		r.logger.Warn("Failed to presign report URL", zap.String("key", key), zap.Error(err))
		return result, nil
	}
	result.DownloadURL = url
	r.logger.Info("Report uploaded",
		zap.String("key", key),
		zap.String("download_url", url),
		zap.Time("expires_at", expiresAt),
	)
	return result, nil
}

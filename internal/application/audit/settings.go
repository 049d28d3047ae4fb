// Package audit runs the chassis stock audit pipeline against the source
// system and turns its outcome into a report artifact.
package audit

import (
	"time"

	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/erp/stockaudit/internal/infrastructure/config"
)

// Settings parameterises one audit run.
type Settings struct {
	Filter             audit.StockFilter
	Plan               audit.EnrichmentPlan
	BillToRole         string
	QueryTimeout       time.Duration
	MaxParallelQueries int
	IncludeStatistics  bool
}

// DefaultSettings returns the settings of the standard St James audit.
func DefaultSettings() Settings {
	facts, _ := audit.NewFactSelection()
	return Settings{
		Filter: audit.StockFilter{
			Plant:           "3211",
			StorageLocation: "0002",
			MaterialPrefix:  "Z12",
		},
		Plan: audit.EnrichmentPlan{
			Scopes: audit.DefaultScopes(),
			Facts:  facts,
			Codes:  audit.DefaultMovementCodes(),
		},
		BillToRole:         "RE",
		QueryTimeout:       5 * time.Minute,
		MaxParallelQueries: 1,
		IncludeStatistics:  true,
	}
}

// SettingsFromConfig builds run settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	facts, err := audit.NewFactSelection(cfg.Enrich.Facts...)
	if err != nil {
		return Settings{}, err
	}

	scopes := make([]audit.Scope, 0, len(cfg.Enrich.Scopes))
	for _, s := range cfg.Enrich.Scopes {
		scopes = append(scopes, audit.Scope{Name: s.Name, SalesOrg: s.SalesOrg})
	}

	s := Settings{
		Filter: audit.StockFilter{
			Plant:           cfg.Audit.Plant,
			StorageLocation: cfg.Audit.StorageLocation,
			MaterialPrefix:  cfg.Audit.MaterialPrefix,
		},
		Plan: audit.EnrichmentPlan{
			Scopes: scopes,
			Facts:  facts,
			Codes: audit.MovementCodes{
				GoodsIssue:   audit.MovementType(cfg.Audit.GoodsIssueCode),
				Reversal:     audit.MovementType(cfg.Audit.ReversalCode),
				GoodsReceipt: audit.MovementType(cfg.Audit.GoodsReceiptCode),
			},
		},
		BillToRole:         cfg.Enrich.BillToRole,
		QueryTimeout:       cfg.Audit.QueryTimeout,
		MaxParallelQueries: cfg.Enrich.MaxParallelQueries,
		IncludeStatistics:  cfg.Report.IncludeStatistics,
	}
	if err := s.Plan.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Package config assembles the runtime configuration of the reconciler CLI
// from flags and environment values.
package config

import (
	"github.com/shopspring/decimal"

	"budget-reconciliation-service/internal/matcher"
	"budget-reconciliation-service/internal/reconciler"
	"budget-reconciliation-service/internal/storage"
	"budget-reconciliation-service/pkg/errors"
	"budget-reconciliation-service/pkg/logger"
)

// ToleranceOverrides carries the CLI flag values that adjust matching
// tolerances. Negative numeric values and empty strings mean "keep the
// default".
type ToleranceOverrides struct {
	DateToleranceDays              int
	AmountTolerancePercent         float64
	AmountToleranceAbsolute        string
	DescriptionSimilarityThreshold float64
	AutoMatchThreshold             float64
}

// CreateMatchingTolerances applies CLI overrides on top of the default
// tolerance set and validates the result.
func CreateMatchingTolerances(overrides ToleranceOverrides) (matcher.MatchingTolerances, error) {
	tolerances := matcher.DefaultTolerances()

	if overrides.DateToleranceDays >= 0 {
		tolerances.DateToleranceDays = overrides.DateToleranceDays
	}
	if overrides.AmountTolerancePercent >= 0 {
		tolerances.AmountTolerancePercent = decimal.NewFromFloat(overrides.AmountTolerancePercent)
	}
	if overrides.AmountToleranceAbsolute != "" {
		absolute, err := decimal.NewFromString(overrides.AmountToleranceAbsolute)
		if err != nil {
			return tolerances, errors.ValidationError(errors.CodeInvalidTolerance, "amount-tolerance", overrides.AmountToleranceAbsolute)
		}
		tolerances.AmountToleranceAbsolute = absolute
	}
	if overrides.DescriptionSimilarityThreshold >= 0 {
		tolerances.DescriptionSimilarityThreshold = overrides.DescriptionSimilarityThreshold
	}
	if overrides.AutoMatchThreshold >= 0 {
		tolerances.AutoMatchThreshold = overrides.AutoMatchThreshold
	}

	if err := tolerances.Validate(); err != nil {
		return tolerances, err
	}
	return tolerances, nil
}

// CreateLoggerConfig builds the logger configuration for CLI runs.
func CreateLoggerConfig(verbose bool) *logger.Config {
	if verbose {
		return logger.DebugConfig()
	}
	cfg := logger.DefaultConfig()
	cfg.Level = logger.WarnLevel
	return cfg
}

// OpenStore opens the SQLite store backing the CLI.
func OpenStore(path string) (*storage.SQLiteStore, error) {
	return storage.NewSQLiteStore(path)
}

// CreateOrchestrator wires an orchestrator over the store's repositories.
func CreateOrchestrator(store *storage.SQLiteStore, tolerances matcher.MatchingTolerances) (*reconciler.Orchestrator, error) {
	return reconciler.NewOrchestrator(store.Transactions(), store.Recurring(), store.Matches(), tolerances)
}

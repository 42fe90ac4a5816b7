package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"budget-reconciliation-service/cmd/reconciler/config"
	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/pkg/errors"
)

var (
	matchTransactionIDs string
	matchFrom           string
	matchTo             string
	matchOverrides      config.ToleranceOverrides
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match transactions against expected recurring instances",
	Long: `Match scores each of the given transactions against the schedule
instances projected for the date range, persists the best new match per
transaction, and auto-matches those at or above the auto-match threshold.

Examples:
  reconciler match --transactions tx-1,tx-2 --from 2026-01-01 --to 2026-01-31
  reconciler match --transactions tx-1 --from 2026-01-01 --to 2026-01-31 --date-tolerance 5`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVarP(&matchTransactionIDs, "transactions", "t", "", "comma-separated transaction IDs to match (required)")
	matchCmd.Flags().StringVar(&matchFrom, "from", "", "range start, YYYY-MM-DD (required)")
	matchCmd.Flags().StringVar(&matchTo, "to", "", "range end, YYYY-MM-DD (required)")
	matchCmd.Flags().IntVar(&matchOverrides.DateToleranceDays, "date-tolerance", -1, "maximum day offset for a candidate")
	matchCmd.Flags().Float64Var(&matchOverrides.AmountTolerancePercent, "amount-tolerance-percent", -1, "amount tolerance as a fraction of the expected amount")
	matchCmd.Flags().StringVar(&matchOverrides.AmountToleranceAbsolute, "amount-tolerance", "", "absolute amount tolerance")
	matchCmd.Flags().Float64Var(&matchOverrides.DescriptionSimilarityThreshold, "similarity-threshold", -1, "minimum description similarity")
	matchCmd.Flags().Float64Var(&matchOverrides.AutoMatchThreshold, "auto-match-threshold", -1, "confidence at which matches are accepted automatically")

	matchCmd.MarkFlagRequired("transactions")
	matchCmd.MarkFlagRequired("from")
	matchCmd.MarkFlagRequired("to")
}

func runMatch(cmd *cobra.Command, args []string) error {
	transactionIDs := splitIDs(matchTransactionIDs)
	if len(transactionIDs) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "transactions", matchTransactionIDs)
	}

	r, err := parseRange(matchFrom, matchTo)
	if err != nil {
		return err
	}
	tolerances, err := config.CreateMatchingTolerances(matchOverrides)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	orchestrator, err := config.CreateOrchestrator(store, tolerances)
	if err != nil {
		return err
	}
	result, err := orchestrator.FindMatches(context.Background(), transactionIDs, r, nil)
	if err != nil {
		return err
	}

	out, err := newReporter()
	if err != nil {
		return err
	}
	return out.WriteMatchRun(result)
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseRange(from, to string) (models.DateRange, error) {
	start, err := parseDay("from", from)
	if err != nil {
		return models.DateRange{}, err
	}
	end, err := parseDay("to", to)
	if err != nil {
		return models.DateRange{}, err
	}
	return models.NewDateRange(start, end)
}

func parseDay(field, value string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, errors.ValidationError(errors.CodeInvalidRange, field, value).
			WithSuggestion("use the YYYY-MM-DD date format")
	}
	return day, nil
}

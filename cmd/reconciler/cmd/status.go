package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"budget-reconciliation-service/cmd/reconciler/config"
	"budget-reconciliation-service/internal/matcher"
)

var (
	statusYear  int
	statusMonth int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how a month's expected instances reconciled",
	Long: `Status projects the expected recurring instances for a calendar month
and classifies each one: matched, awaiting review, or missing entirely.

Examples:
  reconciler status
  reconciler status --year 2026 --month 1 --output-format json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	now := time.Now().UTC()
	statusCmd.Flags().IntVar(&statusYear, "year", now.Year(), "report year")
	statusCmd.Flags().IntVar(&statusMonth, "month", int(now.Month()), "report month (1-12)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	orchestrator, err := config.CreateOrchestrator(store, matcher.DefaultTolerances())
	if err != nil {
		return err
	}
	report, err := orchestrator.GetStatus(context.Background(), statusYear, time.Month(statusMonth))
	if err != nil {
		return err
	}

	out, err := newReporter()
	if err != nil {
		return err
	}
	return out.WriteStatus(report)
}

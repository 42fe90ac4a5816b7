package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"budget-reconciliation-service/cmd/reconciler/config"
	"budget-reconciliation-service/internal/matcher"
	"budget-reconciliation-service/internal/reconciler"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List matches awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *reconciler.Orchestrator) error {
			pending, err := o.GetPendingMatches(ctx)
			if err != nil {
				return err
			}
			out, err := newReporter()
			if err != nil {
				return err
			}
			return out.WritePendingMatches(pending)
		})
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <match-id>...",
	Short: "Accept one or more matches",
	Long: `Accept confirms the given matches and links each transaction to its
recurring instance. With multiple IDs, matches that are unknown or already
decided are skipped and reported instead of failing the batch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *reconciler.Orchestrator) error {
			out, err := newReporter()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				match, err := o.Accept(ctx, args[0])
				if err != nil {
					return err
				}
				return out.WriteMatch(match)
			}
			result, err := o.BulkAccept(ctx, args)
			if err != nil {
				return err
			}
			return out.WriteBulkAccept(result)
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <match-id>",
	Short: "Reject a match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, o *reconciler.Orchestrator) error {
			match, err := o.Reject(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := newReporter()
			if err != nil {
				return err
			}
			return out.WriteMatch(match)
		})
	},
}

var (
	manualTransactionID string
	manualRecurringID   string
	manualInstanceDate  string
)

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Record a manual match",
	Long: `Manual pairs a transaction with a recurring instance directly, without
scoring. The match is created with full confidence, accepted, and linked.

Example:
  reconciler manual --transaction tx-1 --recurring rec-netflix --date 2026-01-15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceDate, err := parseDay("date", manualInstanceDate)
		if err != nil {
			return err
		}
		return withOrchestrator(func(ctx context.Context, o *reconciler.Orchestrator) error {
			match, err := o.CreateManualMatch(ctx, manualTransactionID, manualRecurringID, instanceDate)
			if err != nil {
				return err
			}
			out, err := newReporter()
			if err != nil {
				return err
			}
			return out.WriteMatch(match)
		})
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(manualCmd)

	manualCmd.Flags().StringVar(&manualTransactionID, "transaction", "", "transaction ID (required)")
	manualCmd.Flags().StringVar(&manualRecurringID, "recurring", "", "recurring transaction ID (required)")
	manualCmd.Flags().StringVar(&manualInstanceDate, "date", "", "instance date, YYYY-MM-DD (required)")
	manualCmd.MarkFlagRequired("transaction")
	manualCmd.MarkFlagRequired("recurring")
	manualCmd.MarkFlagRequired("date")
}

// withOrchestrator opens the store, builds an orchestrator with default
// tolerances, and runs fn with it.
func withOrchestrator(fn func(context.Context, *reconciler.Orchestrator) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	orchestrator, err := config.CreateOrchestrator(store, matcher.DefaultTolerances())
	if err != nil {
		return err
	}
	return fn(context.Background(), orchestrator)
}

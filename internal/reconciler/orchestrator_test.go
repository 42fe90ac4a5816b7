package reconciler_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"budget-reconciliation-service/internal/matcher"
	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/internal/reconciler"
	"budget-reconciliation-service/internal/storage"
	"budget-reconciliation-service/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store        *storage.MemoryStore
	orchestrator *reconciler.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	o, err := reconciler.NewOrchestrator(store.Transactions(), store.Recurring(), store.Matches(), matcher.DefaultTolerances())
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return &fixture{store: store, orchestrator: o}
}

func (f *fixture) seedNetflix() {
	f.store.PutRecurringTransaction(&models.RecurringTransaction{
		ID:          "rec-netflix",
		Description: "Netflix",
		Amount:      money("-15.99"),
		Currency:    "USD",
		Frequency:   models.FrequencyMonthly,
		Interval:    1,
		AnchorDate:  date(2026, 1, 15),
		StartDate:   date(2026, 1, 1),
		Active:      true,
	})
}

func (f *fixture) seedTransaction(id string, txDate time.Time, amount, description string) {
	f.store.PutTransaction(models.NewTransaction(id, txDate, money(amount), "USD", description))
}

func januaryRange(t *testing.T) models.DateRange {
	t.Helper()
	r, err := models.NewDateRange(date(2026, 1, 1), date(2026, 1, 31))
	if err != nil {
		t.Fatalf("NewDateRange() error = %v", err)
	}
	return r
}

func TestFindMatchesAutoMatchesHighConfidence(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	f.seedTransaction("tx-1", date(2026, 1, 16), "-15.99", "NETFLIX.COM")

	result, err := f.orchestrator.FindMatches(context.Background(), []string{"tx-1"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("FindMatches() error = %v", err)
	}

	if result.TotalMatchesFound != 1 {
		t.Fatalf("TotalMatchesFound = %d, want 1", result.TotalMatchesFound)
	}
	if result.AutoMatchedCount != 1 {
		t.Errorf("AutoMatchedCount = %d, want 1", result.AutoMatchedCount)
	}
	if result.HighConfidenceCount != 1 {
		t.Errorf("HighConfidenceCount = %d, want 1", result.HighConfidenceCount)
	}

	match := result.Results[0].Match
	if match == nil {
		t.Fatal("expected persisted match")
	}
	if match.Status != models.StatusAutoMatched {
		t.Errorf("Status = %v, want %v", match.Status, models.StatusAutoMatched)
	}
	if match.DateOffsetDays != 1 {
		t.Errorf("DateOffsetDays = %d, want 1", match.DateOffsetDays)
	}
}

func TestFindMatchesSecondRunCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	f.seedTransaction("tx-1", date(2026, 1, 16), "-15.99", "NETFLIX.COM")
	ctx := context.Background()

	if _, err := f.orchestrator.FindMatches(ctx, []string{"tx-1"}, januaryRange(t), nil); err != nil {
		t.Fatalf("first FindMatches() error = %v", err)
	}
	second, err := f.orchestrator.FindMatches(ctx, []string{"tx-1"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("second FindMatches() error = %v", err)
	}
	if second.TotalMatchesFound != 0 {
		t.Errorf("second run TotalMatchesFound = %d, want 0", second.TotalMatchesFound)
	}
}

func TestFindMatchesSecondRunKeepsOneMatchPerTransaction(t *testing.T) {
	f := newFixture(t)
	// Two recurring schedules produce equally plausible candidates for the
	// same transaction. Once the first run has recorded the best one, later
	// runs must not fall through to the runner-up.
	for _, id := range []string{"rec-a", "rec-b"} {
		f.store.PutRecurringTransaction(&models.RecurringTransaction{
			ID:          id,
			Description: "Netflix",
			Amount:      money("-15.99"),
			Currency:    "USD",
			Frequency:   models.FrequencyMonthly,
			Interval:    1,
			AnchorDate:  date(2026, 1, 15),
			StartDate:   date(2026, 1, 1),
			Active:      true,
		})
	}
	f.seedTransaction("tx-1", date(2026, 1, 16), "-15.99", "NETFLIX.COM")
	ctx := context.Background()

	first, err := f.orchestrator.FindMatches(ctx, []string{"tx-1"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("first FindMatches() error = %v", err)
	}
	if first.TotalMatchesFound != 1 {
		t.Fatalf("first run TotalMatchesFound = %d, want 1", first.TotalMatchesFound)
	}
	if got := len(first.Results[0].Candidates); got != 2 {
		t.Fatalf("candidate count = %d, want 2", got)
	}

	second, err := f.orchestrator.FindMatches(ctx, []string{"tx-1"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("second FindMatches() error = %v", err)
	}
	if second.TotalMatchesFound != 0 {
		t.Errorf("second run TotalMatchesFound = %d, want 0", second.TotalMatchesFound)
	}

	persisted, err := f.store.Matches().GetByPeriod(ctx, 2026, time.January)
	if err != nil {
		t.Fatalf("GetByPeriod() error = %v", err)
	}
	if len(persisted) != 1 {
		t.Errorf("persisted matches = %d, want 1", len(persisted))
	}
}

func TestFindMatchesSuggestsBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	// Three days off with a small variance: candidate survives but scores
	// below the auto-match threshold.
	f.seedTransaction("tx-1", date(2026, 1, 18), "-16.49", "NETFLIX.COM")

	result, err := f.orchestrator.FindMatches(context.Background(), []string{"tx-1"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("FindMatches() error = %v", err)
	}

	match := result.Results[0].Match
	if match == nil {
		t.Fatal("expected persisted match")
	}
	if match.Status != models.StatusSuggested {
		t.Errorf("Status = %v, want %v", match.Status, models.StatusSuggested)
	}
	if result.AutoMatchedCount != 0 {
		t.Errorf("AutoMatchedCount = %d, want 0", result.AutoMatchedCount)
	}
}

func TestFindMatchesSkipsUnknownAndLinkedTransactions(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()

	linked := models.NewTransaction("tx-linked", date(2026, 1, 15), money("-15.99"), "USD", "Netflix")
	recurringID := "rec-netflix"
	instanceDate := date(2026, 1, 15)
	linked.LinkedRecurringID = &recurringID
	linked.LinkedInstanceDate = &instanceDate
	f.store.PutTransaction(linked)

	result, err := f.orchestrator.FindMatches(context.Background(), []string{"tx-missing", "tx-linked"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("FindMatches() error = %v", err)
	}
	if result.TotalMatchesFound != 0 {
		t.Errorf("TotalMatchesFound = %d, want 0", result.TotalMatchesFound)
	}
	if !result.Results[0].NotFound {
		t.Error("expected unknown transaction to be flagged not found")
	}
	if !result.Results[1].AlreadyLinked {
		t.Error("expected linked transaction to be flagged already linked")
	}
}

func TestAcceptLinksTransaction(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	f.seedTransaction("tx-1", date(2026, 1, 18), "-16.49", "NETFLIX.COM")
	ctx := context.Background()

	result, err := f.orchestrator.FindMatches(ctx, []string{"tx-1"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("FindMatches() error = %v", err)
	}
	matchID := result.Results[0].Match.ID

	accepted, err := f.orchestrator.Accept(ctx, matchID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if accepted.Status != models.StatusAccepted {
		t.Errorf("Status = %v, want %v", accepted.Status, models.StatusAccepted)
	}
	if accepted.ResolvedAtUTC == nil {
		t.Error("expected resolution timestamp")
	}

	tx, err := f.store.Transactions().GetByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !tx.IsLinked() {
		t.Error("accepted match should link the transaction")
	}
	if *tx.LinkedRecurringID != "rec-netflix" {
		t.Errorf("LinkedRecurringID = %q, want rec-netflix", *tx.LinkedRecurringID)
	}
}

func TestRejectDoesNotLink(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	f.seedTransaction("tx-1", date(2026, 1, 18), "-16.49", "NETFLIX.COM")
	ctx := context.Background()

	result, err := f.orchestrator.FindMatches(ctx, []string{"tx-1"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("FindMatches() error = %v", err)
	}
	matchID := result.Results[0].Match.ID

	rejected, err := f.orchestrator.Reject(ctx, matchID)
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != models.StatusRejected {
		t.Errorf("Status = %v, want %v", rejected.Status, models.StatusRejected)
	}

	tx, _ := f.store.Transactions().GetByID(ctx, "tx-1")
	if tx.IsLinked() {
		t.Error("rejected match must not link the transaction")
	}

	// Rejection is terminal.
	if _, err := f.orchestrator.Accept(ctx, matchID); !errors.IsInvalidStateTransition(err) {
		t.Errorf("Accept() after reject: error = %v, want invalid state transition", err)
	}
}

func TestAcceptUnknownMatch(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orchestrator.Accept(context.Background(), "no-such-match"); !errors.IsNotFound(err) {
		t.Errorf("Accept() error = %v, want not found", err)
	}
}

func TestBulkAcceptSkipsUndecidable(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	f.seedTransaction("tx-1", date(2026, 1, 18), "-16.49", "NETFLIX.COM")
	ctx := context.Background()

	result, err := f.orchestrator.FindMatches(ctx, []string{"tx-1"}, januaryRange(t), nil)
	if err != nil {
		t.Fatalf("FindMatches() error = %v", err)
	}
	matchID := result.Results[0].Match.ID
	if _, err := f.orchestrator.Reject(ctx, matchID); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	bulk, err := f.orchestrator.BulkAccept(ctx, []string{matchID, "no-such-match"})
	if err != nil {
		t.Fatalf("BulkAccept() error = %v", err)
	}
	if bulk.AcceptedCount != 0 {
		t.Errorf("AcceptedCount = %d, want 0", bulk.AcceptedCount)
	}
	if len(bulk.Skipped) != 2 {
		t.Fatalf("Skipped = %v, want 2 entries", bulk.Skipped)
	}
	if bulk.Skipped[0].Reason != "already decided" {
		t.Errorf("Skipped[0].Reason = %q", bulk.Skipped[0].Reason)
	}
	if bulk.Skipped[1].Reason != "not found" {
		t.Errorf("Skipped[1].Reason = %q", bulk.Skipped[1].Reason)
	}
}

func TestCreateManualMatch(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	f.seedTransaction("tx-1", date(2026, 1, 17), "-15.99", "Card payment")
	ctx := context.Background()

	match, err := f.orchestrator.CreateManualMatch(ctx, "tx-1", "rec-netflix", date(2026, 1, 15))
	if err != nil {
		t.Fatalf("CreateManualMatch() error = %v", err)
	}
	if match.ConfidenceScore != 1.0 {
		t.Errorf("ConfidenceScore = %v, want 1.0", match.ConfidenceScore)
	}
	if match.Status != models.StatusAccepted {
		t.Errorf("Status = %v, want %v", match.Status, models.StatusAccepted)
	}
	if match.Scope != models.ScopeManual {
		t.Errorf("Scope = %v, want %v", match.Scope, models.ScopeManual)
	}

	tx, _ := f.store.Transactions().GetByID(ctx, "tx-1")
	if !tx.IsLinked() {
		t.Error("manual match should link the transaction")
	}

	// Creating the same pairing again returns the stored match.
	again, err := f.orchestrator.CreateManualMatch(ctx, "tx-1", "rec-netflix", date(2026, 1, 15))
	if err != nil {
		t.Fatalf("repeat CreateManualMatch() error = %v", err)
	}
	if again.ID != match.ID {
		t.Errorf("repeat returned new match %s, want existing %s", again.ID, match.ID)
	}
}

func TestCreateManualMatchUnknownEntities(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	ctx := context.Background()

	if _, err := f.orchestrator.CreateManualMatch(ctx, "tx-missing", "rec-netflix", date(2026, 1, 15)); !errors.IsNotFound(err) {
		t.Errorf("unknown transaction: error = %v, want not found", err)
	}

	f.seedTransaction("tx-1", date(2026, 1, 15), "-15.99", "Netflix")
	if _, err := f.orchestrator.CreateManualMatch(ctx, "tx-1", "rec-missing", date(2026, 1, 15)); !errors.IsNotFound(err) {
		t.Errorf("unknown recurring: error = %v, want not found", err)
	}
}

func TestGetPendingMatches(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	f.seedTransaction("tx-1", date(2026, 1, 18), "-16.49", "NETFLIX.COM")
	ctx := context.Background()

	if _, err := f.orchestrator.FindMatches(ctx, []string{"tx-1"}, januaryRange(t), nil); err != nil {
		t.Fatalf("FindMatches() error = %v", err)
	}

	pending, err := f.orchestrator.GetPendingMatches(ctx)
	if err != nil {
		t.Fatalf("GetPendingMatches() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	if _, err := f.orchestrator.Accept(ctx, pending[0].ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	pending, err = f.orchestrator.GetPendingMatches(ctx)
	if err != nil {
		t.Fatalf("GetPendingMatches() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after accept = %d, want 0", len(pending))
	}
}

func TestGetStatusClassifiesInstances(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()
	f.store.PutRecurringTransaction(&models.RecurringTransaction{
		ID:          "rec-gym",
		Description: "Gym membership",
		Amount:      money("-30.00"),
		Currency:    "USD",
		Frequency:   models.FrequencyMonthly,
		Interval:    1,
		AnchorDate:  date(2026, 1, 5),
		StartDate:   date(2026, 1, 1),
		Active:      true,
	})
	f.store.PutRecurringTransaction(&models.RecurringTransaction{
		ID:          "rec-rent",
		Description: "Rent",
		Amount:      money("-900.00"),
		Currency:    "USD",
		Frequency:   models.FrequencyMonthly,
		Interval:    1,
		AnchorDate:  date(2026, 1, 1),
		StartDate:   date(2026, 1, 1),
		Active:      true,
		Exceptions: []models.ScheduleException{
			{Date: date(2026, 1, 1), Type: models.ExceptionTypeSkip},
		},
	})
	f.seedTransaction("tx-netflix", date(2026, 1, 16), "-15.99", "NETFLIX.COM")
	f.seedTransaction("tx-gym", date(2026, 1, 7), "-30.45", "GYM MEMBERSHIP FEE")
	ctx := context.Background()

	if _, err := f.orchestrator.FindMatches(ctx, []string{"tx-netflix", "tx-gym"}, januaryRange(t), nil); err != nil {
		t.Fatalf("FindMatches() error = %v", err)
	}

	report, err := f.orchestrator.GetStatus(ctx, 2026, time.January)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}

	if report.TotalExpected != 2 {
		t.Errorf("TotalExpected = %d, want 2 (skipped excluded)", report.TotalExpected)
	}
	if report.Matched != 1 {
		t.Errorf("Matched = %d, want 1", report.Matched)
	}
	if report.Pending != 1 {
		t.Errorf("Pending = %d, want 1", report.Pending)
	}
	if report.Missing != 0 {
		t.Errorf("Missing = %d, want 0", report.Missing)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}

	byRecurring := make(map[string]reconciler.InstanceStatusReport)
	for _, line := range report.Instances {
		byRecurring[line.RecurringTransactionID] = line
	}
	if byRecurring["rec-netflix"].Status != reconciler.InstanceMatched {
		t.Errorf("netflix status = %v, want %v", byRecurring["rec-netflix"].Status, reconciler.InstanceMatched)
	}
	if byRecurring["rec-gym"].Status != reconciler.InstancePending {
		t.Errorf("gym status = %v, want %v", byRecurring["rec-gym"].Status, reconciler.InstancePending)
	}
	if byRecurring["rec-rent"].Status != reconciler.InstanceSkipped {
		t.Errorf("rent status = %v, want %v", byRecurring["rec-rent"].Status, reconciler.InstanceSkipped)
	}
}

func TestGetStatusMissingInstance(t *testing.T) {
	f := newFixture(t)
	f.seedNetflix()

	report, err := f.orchestrator.GetStatus(context.Background(), 2026, time.January)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if report.Missing != 1 {
		t.Errorf("Missing = %d, want 1", report.Missing)
	}
}

func TestGetStatusInvalidPeriod(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orchestrator.GetStatus(context.Background(), 2026, time.Month(13)); !errors.IsValidation(err) {
		t.Errorf("GetStatus() error = %v, want validation error", err)
	}
}

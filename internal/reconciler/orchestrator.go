package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"budget-reconciliation-service/internal/matcher"
	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/internal/schedule"
	"budget-reconciliation-service/pkg/errors"
	"budget-reconciliation-service/pkg/logger"
)

// TransactionMatchResult groups the outcome of one transaction's matching
// run: every surviving candidate plus the match that was persisted, if any.
type TransactionMatchResult struct {
	TransactionID string                      `json:"transaction_id"`
	Candidates    []matcher.MatchCandidate    `json:"candidates,omitempty"`
	Match         *models.ReconciliationMatch `json:"match,omitempty"`
	AlreadyLinked bool                        `json:"already_linked,omitempty"`
	NotFound      bool                        `json:"not_found,omitempty"`
}

// MatchRunResult is the aggregate outcome of a matching run.
type MatchRunResult struct {
	Results             []TransactionMatchResult `json:"results"`
	TotalMatchesFound   int                      `json:"total_matches_found"`
	HighConfidenceCount int                      `json:"high_confidence_count"`
	AutoMatchedCount    int                      `json:"auto_matched_count"`
}

// BulkAcceptResult summarizes a bulk acceptance: how many matches were
// accepted and which IDs were skipped, with the reason.
type BulkAcceptResult struct {
	AcceptedCount int            `json:"accepted_count"`
	Skipped       []SkippedMatch `json:"skipped,omitempty"`
}

// SkippedMatch records why a match in a bulk operation was not processed.
type SkippedMatch struct {
	MatchID string `json:"match_id"`
	Reason  string `json:"reason"`
}

// InstanceStatus classifies an expected schedule instance in a status
// report.
type InstanceStatus string

const (
	InstanceMatched InstanceStatus = "MATCHED"
	InstancePending InstanceStatus = "PENDING"
	InstanceMissing InstanceStatus = "MISSING"
	InstanceSkipped InstanceStatus = "SKIPPED"
)

// InstanceStatusReport is the per-instance line of a status report.
type InstanceStatusReport struct {
	RecurringTransactionID string          `json:"recurring_transaction_id"`
	Description            string          `json:"description"`
	InstanceDate           time.Time       `json:"instance_date"`
	ExpectedAmount         decimal.Decimal `json:"expected_amount"`
	Currency               string          `json:"currency"`
	Status                 InstanceStatus  `json:"status"`
	MatchID                string          `json:"match_id,omitempty"`
	TransactionID          string          `json:"transaction_id,omitempty"`
	ConfidenceScore        float64         `json:"confidence_score,omitempty"`
}

// StatusReport summarizes how a month's expected instances reconciled.
// Skipped instances are listed but excluded from the expected total.
type StatusReport struct {
	Year          int                    `json:"year"`
	Month         time.Month             `json:"month"`
	TotalExpected int                    `json:"total_expected"`
	Matched       int                    `json:"matched"`
	Pending       int                    `json:"pending"`
	Missing       int                    `json:"missing"`
	Skipped       int                    `json:"skipped"`
	Instances     []InstanceStatusReport `json:"instances"`
}

// Orchestrator coordinates the reconciliation flow across the repositories,
// the schedule projector, and the scoring matcher.
type Orchestrator struct {
	transactions TransactionRepository
	recurring    RecurringTransactionRepository
	matches      ReconciliationMatchRepository
	projector    *schedule.Projector
	tolerances   matcher.MatchingTolerances
	logger       logger.Logger
}

// NewOrchestrator creates an orchestrator using the given repositories and
// default tolerances for runs that do not override them.
func NewOrchestrator(
	transactions TransactionRepository,
	recurring RecurringTransactionRepository,
	matches ReconciliationMatchRepository,
	tolerances matcher.MatchingTolerances,
) (*Orchestrator, error) {
	if err := tolerances.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		transactions: transactions,
		recurring:    recurring,
		matches:      matches,
		projector:    schedule.NewProjector(),
		tolerances:   tolerances,
		logger:       logger.GetGlobalLogger().WithComponent("orchestrator"),
	}, nil
}

// FindMatches runs the matcher for each transaction against the projected
// schedule instances in the range, persisting one new match per transaction:
// the best-scoring candidate whose pairing does not already exist. Matches
// at or above the auto-match threshold are created AutoMatched; linking to
// the transaction happens on Accept. Transactions that are unknown or
// already linked are reported but produce no match. A second run over the
// same inputs creates nothing new.
func (o *Orchestrator) FindMatches(ctx context.Context, transactionIDs []string, r models.DateRange, overrides *matcher.MatchingTolerances) (*MatchRunResult, error) {
	tolerances := o.tolerances
	if overrides != nil {
		tolerances = *overrides
	}
	m, err := matcher.NewMatcher(tolerances)
	if err != nil {
		return nil, err
	}

	active, err := o.recurring.GetActive(ctx)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "loading active recurring transactions")
	}
	projection, err := o.projector.Project(active, r)
	if err != nil {
		return nil, err
	}
	instances := schedule.Flatten(projection)

	result := &MatchRunResult{}
	for _, txID := range transactionIDs {
		txResult, err := o.matchOne(ctx, m, txID, instances, tolerances)
		if err != nil {
			return nil, err
		}
		if txResult.Match != nil {
			result.TotalMatchesFound++
			if txResult.Match.ConfidenceLevel() == models.ConfidenceHigh {
				result.HighConfidenceCount++
			}
			if txResult.Match.Status == models.StatusAutoMatched {
				result.AutoMatchedCount++
			}
		}
		result.Results = append(result.Results, txResult)
	}

	o.logger.WithFields(logger.Fields{
		"transactions":    len(transactionIDs),
		"matches_found":   result.TotalMatchesFound,
		"auto_matched":    result.AutoMatchedCount,
		"high_confidence": result.HighConfidenceCount,
	}).Info("Completed matching run")

	return result, nil
}

func (o *Orchestrator) matchOne(ctx context.Context, m *matcher.Matcher, txID string, instances []models.ScheduleInstance, tolerances matcher.MatchingTolerances) (TransactionMatchResult, error) {
	result := TransactionMatchResult{TransactionID: txID}

	tx, err := o.transactions.GetByID(ctx, txID)
	if err != nil {
		return result, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "loading transaction")
	}
	if tx == nil {
		o.logger.WithField("transaction", txID).Warn("Transaction not found, skipping")
		result.NotFound = true
		return result, nil
	}
	if tx.IsLinked() {
		result.AlreadyLinked = true
		return result, nil
	}

	result.Candidates = m.FindMatches(tx, instances)
	for _, candidate := range result.Candidates {
		exists, err := o.matches.Exists(ctx, tx.ID, candidate.RecurringTransactionID, candidate.InstanceDate)
		if err != nil {
			return result, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "checking for existing match")
		}
		if exists {
			// The best candidate is already recorded, so this
			// transaction is covered; persisting the runner-up would
			// give one transaction two live matches.
			break
		}

		match := models.NewReconciliationMatch(tx.ID, candidate.RecurringTransactionID, candidate.InstanceDate,
			candidate.ConfidenceScore, candidate.AmountVariance, candidate.DateOffsetDays)
		if candidate.ConfidenceScore >= tolerances.AutoMatchThreshold {
			if match, err = match.AutoMatch(); err != nil {
				return result, err
			}
		}
		if err := o.addMatch(ctx, match); err != nil {
			return result, err
		}
		result.Match = &match
		break
	}
	return result, nil
}

// addMatch persists a match, treating a uniqueness violation as an
// idempotent no-op: a concurrent run already recorded the same pairing.
func (o *Orchestrator) addMatch(ctx context.Context, match models.ReconciliationMatch) error {
	if err := match.Validate(); err != nil {
		return err
	}
	err := o.matches.Add(ctx, match)
	if err == nil {
		return nil
	}
	if re, ok := errors.AsReconcilerError(err); ok && re.Code == errors.CodeConstraintViolation {
		o.logger.WithField("match", match.Key()).Debug("Match already recorded, skipping duplicate")
		return nil
	}
	return errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "persisting match")
}

// CreateManualMatch records a user-asserted pairing with full confidence,
// accepts it immediately, and links the transaction. If the pairing already
// exists the stored match is returned unchanged.
func (o *Orchestrator) CreateManualMatch(ctx context.Context, transactionID, recurringTransactionID string, instanceDate time.Time) (*models.ReconciliationMatch, error) {
	instanceDate = models.Date(instanceDate)

	tx, err := o.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "loading transaction")
	}
	if tx == nil {
		return nil, errors.NotFoundError("transaction", transactionID)
	}

	rec, err := o.recurring.GetByID(ctx, recurringTransactionID)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "loading recurring transaction")
	}
	if rec == nil {
		return nil, errors.NotFoundError("recurring transaction", recurringTransactionID)
	}

	if existing, err := o.findExisting(ctx, transactionID, recurringTransactionID, instanceDate); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	variance := o.expectedAmountOn(rec, instanceDate).Sub(tx.Amount)
	offset := models.DaysBetween(tx.Date, instanceDate)

	match := models.NewManualMatch(transactionID, recurringTransactionID, instanceDate, variance, offset)
	match, err = match.Accept()
	if err != nil {
		return nil, err
	}
	if err := o.addMatch(ctx, match); err != nil {
		return nil, err
	}
	if err := o.transactions.LinkToRecurringInstance(ctx, transactionID, recurringTransactionID, instanceDate); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "linking transaction")
	}

	o.logger.WithFields(logger.Fields{
		"transaction": transactionID,
		"recurring":   recurringTransactionID,
		"instance":    instanceDate.Format("2006-01-02"),
	}).Info("Created manual match")

	return &match, nil
}

// expectedAmountOn returns the amount the schedule expects on the given
// date, honoring modify exceptions. A manual match is allowed even off
// schedule, falling back to the base amount.
func (o *Orchestrator) expectedAmountOn(rec *models.RecurringTransaction, instanceDate time.Time) decimal.Decimal {
	if exc, ok := rec.ExceptionOn(instanceDate); ok && exc.Type == models.ExceptionTypeModify && exc.Amount != nil {
		return *exc.Amount
	}
	return rec.Amount
}

func (o *Orchestrator) findExisting(ctx context.Context, transactionID, recurringTransactionID string, instanceDate time.Time) (*models.ReconciliationMatch, error) {
	day := models.DateRange{Start: instanceDate, End: instanceDate}
	siblings, err := o.matches.GetByRecurringTransaction(ctx, recurringTransactionID, day)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "checking for existing match")
	}
	for i := range siblings {
		if siblings[i].TransactionID == transactionID {
			return &siblings[i], nil
		}
	}
	return nil, nil
}

func (o *Orchestrator) getMatch(ctx context.Context, matchID string) (models.ReconciliationMatch, error) {
	match, err := o.matches.GetByID(ctx, matchID)
	if err != nil {
		return models.ReconciliationMatch{}, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "loading match")
	}
	if match == nil {
		return models.ReconciliationMatch{}, errors.NotFoundError("match", matchID)
	}
	return *match, nil
}

// Accept confirms a match, links its transaction to the recurring instance,
// and persists the transition.
func (o *Orchestrator) Accept(ctx context.Context, matchID string) (*models.ReconciliationMatch, error) {
	match, err := o.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	updated, err := match.Accept()
	if err != nil {
		return nil, err
	}
	if err := o.transactions.LinkToRecurringInstance(ctx, updated.TransactionID, updated.RecurringTransactionID, updated.RecurringInstanceDate); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "linking transaction")
	}
	if err := o.matches.Update(ctx, updated); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "updating match")
	}

	o.logger.WithField("match", updated.ID).Info("Accepted match")
	return &updated, nil
}

// Reject declines a match and persists the transition. The transaction is
// never linked, so there is nothing to undo.
func (o *Orchestrator) Reject(ctx context.Context, matchID string) (*models.ReconciliationMatch, error) {
	match, err := o.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	updated, err := match.Reject()
	if err != nil {
		return nil, err
	}
	if err := o.matches.Update(ctx, updated); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "updating match")
	}

	o.logger.WithField("match", updated.ID).Info("Rejected match")
	return &updated, nil
}

// BulkAccept accepts each of the given matches, skipping IDs that do not
// exist or are already decided instead of failing the whole batch.
func (o *Orchestrator) BulkAccept(ctx context.Context, matchIDs []string) (*BulkAcceptResult, error) {
	result := &BulkAcceptResult{}
	for _, id := range matchIDs {
		_, err := o.Accept(ctx, id)
		switch {
		case err == nil:
			result.AcceptedCount++
		case errors.IsNotFound(err):
			result.Skipped = append(result.Skipped, SkippedMatch{MatchID: id, Reason: "not found"})
		case errors.IsInvalidStateTransition(err):
			result.Skipped = append(result.Skipped, SkippedMatch{MatchID: id, Reason: "already decided"})
		default:
			return nil, err
		}
	}
	return result, nil
}

// GetPendingMatches returns every match awaiting a decision.
func (o *Orchestrator) GetPendingMatches(ctx context.Context) ([]models.ReconciliationMatch, error) {
	pending, err := o.matches.GetPending(ctx)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "loading pending matches")
	}
	return pending, nil
}

// GetStatus reports how a calendar month's expected instances reconciled:
// matched, awaiting review, or missing entirely. Skipped instances are
// listed separately and excluded from the expected total.
func (o *Orchestrator) GetStatus(ctx context.Context, year int, month time.Month) (*StatusReport, error) {
	if year < 1 || month < time.January || month > time.December {
		return nil, errors.ValidationError(errors.CodeInvalidPeriod, "period", fmt.Sprintf("%04d-%02d", year, month))
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	r := models.DateRange{Start: start, End: start.AddDate(0, 1, -1)}

	active, err := o.recurring.GetActive(ctx)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "loading active recurring transactions")
	}
	projection, err := o.projector.ProjectIncludingSkipped(active, r)
	if err != nil {
		return nil, err
	}

	matches, err := o.matches.GetByPeriod(ctx, year, month)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeQueryFailed, "loading matches for period")
	}
	byInstance := indexMatches(matches)

	report := &StatusReport{Year: year, Month: month}
	for _, inst := range schedule.Flatten(projection) {
		line := InstanceStatusReport{
			RecurringTransactionID: inst.RecurringTransactionID,
			Description:            inst.Description,
			InstanceDate:           inst.InstanceDate,
			ExpectedAmount:         inst.ExpectedAmount,
			Currency:               inst.Currency,
		}

		switch {
		case inst.IsSkipped:
			line.Status = InstanceSkipped
			report.Skipped++
		default:
			report.TotalExpected++
			if match, ok := byInstance[instanceKey(inst.RecurringTransactionID, inst.InstanceDate)]; ok {
				line.MatchID = match.ID
				line.TransactionID = match.TransactionID
				line.ConfidenceScore = match.ConfidenceScore
				if match.Status.IsPending() {
					line.Status = InstancePending
					report.Pending++
				} else {
					line.Status = InstanceMatched
					report.Matched++
				}
			} else {
				line.Status = InstanceMissing
				report.Missing++
			}
		}
		report.Instances = append(report.Instances, line)
	}
	return report, nil
}

// indexMatches keeps the strongest match per instance: a decided or
// auto-matched record wins over a suggestion, and rejected matches do not
// count at all.
func indexMatches(matches []models.ReconciliationMatch) map[string]models.ReconciliationMatch {
	byInstance := make(map[string]models.ReconciliationMatch)
	for _, m := range matches {
		if m.Status == models.StatusRejected {
			continue
		}
		key := instanceKey(m.RecurringTransactionID, m.RecurringInstanceDate)
		current, ok := byInstance[key]
		if !ok || (current.Status.IsPending() && !m.Status.IsPending()) {
			byInstance[key] = m
		}
	}
	return byInstance
}

func instanceKey(recurringTransactionID string, instanceDate time.Time) string {
	return recurringTransactionID + "|" + instanceDate.Format("2006-01-02")
}

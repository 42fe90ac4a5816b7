package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budget-reconciliation-service/pkg/errors"
)

// MatchStatus is the lifecycle state of a reconciliation match.
type MatchStatus string

const (
	// StatusSuggested marks a match awaiting user review.
	StatusSuggested MatchStatus = "SUGGESTED"
	// StatusAutoMatched marks a match accepted automatically because its
	// confidence met the auto-match threshold.
	StatusAutoMatched MatchStatus = "AUTO_MATCHED"
	// StatusAccepted marks a match confirmed by the user. Terminal.
	StatusAccepted MatchStatus = "ACCEPTED"
	// StatusRejected marks a match declined by the user. Terminal.
	StatusRejected MatchStatus = "REJECTED"
)

func (s MatchStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is one of the defined states.
func (s MatchStatus) IsValid() bool {
	switch s {
	case StatusSuggested, StatusAutoMatched, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s MatchStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// IsPending reports whether the match still needs a user decision.
func (s MatchStatus) IsPending() bool {
	return s == StatusSuggested
}

// ConfidenceLevel is a display band derived from the numeric confidence
// score. It is never stored independently of the score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// Confidence band boundaries.
const (
	highConfidenceFloor   = 0.85
	mediumConfidenceFloor = 0.6
)

// ConfidenceLevelFor maps a confidence score to its display band.
func ConfidenceLevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= highConfidenceFloor:
		return ConfidenceHigh
	case score >= mediumConfidenceFloor:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// MatchScope records how a match came to exist.
type MatchScope string

const (
	// ScopeAutomatic marks matches produced by the scoring matcher.
	ScopeAutomatic MatchScope = "AUTOMATIC"
	// ScopeManual marks matches created by an explicit user pairing.
	ScopeManual MatchScope = "MANUAL"
)

// ReconciliationMatch is a proposed or decided pairing between an imported
// transaction and a concrete recurring schedule instance.
//
// Transitions are value semantics: Accept, Reject and AutoMatch return the
// updated match instead of mutating the receiver, so callers persist
// exactly the state they were handed and concurrent readers never observe a
// half-applied transition.
type ReconciliationMatch struct {
	ID                     string          `json:"id"`
	TransactionID          string          `json:"transaction_id"`
	RecurringTransactionID string          `json:"recurring_transaction_id"`
	RecurringInstanceDate  time.Time       `json:"recurring_instance_date"`
	ConfidenceScore        float64         `json:"confidence_score"`
	Status                 MatchStatus     `json:"status"`
	AmountVariance         decimal.Decimal `json:"amount_variance"`
	DateOffsetDays         int             `json:"date_offset_days"`
	CreatedAtUTC           time.Time       `json:"created_at_utc"`
	ResolvedAtUTC          *time.Time      `json:"resolved_at_utc,omitempty"`
	Scope                  MatchScope      `json:"scope"`
	OwnerUserID            string          `json:"owner_user_id,omitempty"`
}

// NewReconciliationMatch creates a suggested match for a scored candidate
// pairing. The confidence score is fixed here and never rescored by later
// transitions.
func NewReconciliationMatch(transactionID, recurringTransactionID string, instanceDate time.Time, confidenceScore float64, amountVariance decimal.Decimal, dateOffsetDays int) ReconciliationMatch {
	return ReconciliationMatch{
		ID:                     uuid.NewString(),
		TransactionID:          transactionID,
		RecurringTransactionID: recurringTransactionID,
		RecurringInstanceDate:  Date(instanceDate),
		ConfidenceScore:        confidenceScore,
		Status:                 StatusSuggested,
		AmountVariance:         amountVariance,
		DateOffsetDays:         dateOffsetDays,
		CreatedAtUTC:           time.Now().UTC(),
		Scope:                  ScopeAutomatic,
	}
}

// NewManualMatch creates a user-initiated match carrying full confidence.
func NewManualMatch(transactionID, recurringTransactionID string, instanceDate time.Time, amountVariance decimal.Decimal, dateOffsetDays int) ReconciliationMatch {
	m := NewReconciliationMatch(transactionID, recurringTransactionID, instanceDate, 1.0, amountVariance, dateOffsetDays)
	m.Scope = ScopeManual
	return m
}

// ConfidenceLevel returns the display band for the match's score.
func (m ReconciliationMatch) ConfidenceLevel() ConfidenceLevel {
	return ConfidenceLevelFor(m.ConfidenceScore)
}

// AutoMatch promotes a freshly suggested match to AutoMatched. It is only
// legal before the match has been reviewed.
func (m ReconciliationMatch) AutoMatch() (ReconciliationMatch, error) {
	if m.Status != StatusSuggested {
		return m, errors.StateTransitionError(m.Status.String(), "auto-match")
	}
	m.Status = StatusAutoMatched
	return m, nil
}

// Accept confirms the match. Accepting an auto-matched record is an
// idempotent confirmation; accepting a terminal record fails.
func (m ReconciliationMatch) Accept() (ReconciliationMatch, error) {
	if m.Status.IsTerminal() {
		return m, errors.StateTransitionError(m.Status.String(), "accept")
	}
	m.Status = StatusAccepted
	m.resolve()
	return m, nil
}

// Reject declines the match. Rejecting a terminal record fails.
func (m ReconciliationMatch) Reject() (ReconciliationMatch, error) {
	if m.Status.IsTerminal() {
		return m, errors.StateTransitionError(m.Status.String(), "reject")
	}
	m.Status = StatusRejected
	m.resolve()
	return m, nil
}

func (m *ReconciliationMatch) resolve() {
	now := time.Now().UTC()
	m.ResolvedAtUTC = &now
}

// Validate checks the fields required before persisting a match.
func (m *ReconciliationMatch) Validate() error {
	if m.ID == "" {
		return errors.ValidationError(errors.CodeMissingField, "id", "")
	}
	if m.TransactionID == "" {
		return errors.ValidationError(errors.CodeMissingField, "transaction_id", "")
	}
	if m.RecurringTransactionID == "" {
		return errors.ValidationError(errors.CodeMissingField, "recurring_transaction_id", "")
	}
	if !m.Status.IsValid() {
		return errors.ValidationError(errors.CodeMissingField, "status", string(m.Status))
	}
	if m.ConfidenceScore < 0 || m.ConfidenceScore > 1 {
		return errors.ValidationError(errors.CodeInvalidRange, "confidence_score", fmt.Sprintf("%.4f", m.ConfidenceScore))
	}
	return nil
}

// Key identifies the unique pairing this match records.
func (m *ReconciliationMatch) Key() string {
	return fmt.Sprintf("%s|%s|%s", m.TransactionID, m.RecurringTransactionID, m.RecurringInstanceDate.Format("2006-01-02"))
}

func (m ReconciliationMatch) String() string {
	return fmt.Sprintf("Match[%s: tx=%s recurring=%s@%s score=%.4f status=%s]",
		m.ID, m.TransactionID, m.RecurringTransactionID,
		m.RecurringInstanceDate.Format("2006-01-02"), m.ConfidenceScore, m.Status)
}

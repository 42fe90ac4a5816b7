// Package models defines the core domain entities of the reconciliation
// engine: imported transactions, recurring transaction templates with their
// schedule exceptions, and the reconciliation match aggregate.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budget-reconciliation-service/pkg/errors"
)

// Frequency represents how often a recurring transaction repeats.
type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

// String returns the string representation of the frequency.
func (f Frequency) String() string {
	return string(f)
}

// IsValid checks if the frequency is a known value.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly,
		FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// ParseFrequency parses and validates a frequency from a string.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid frequency '%s'", s)
	}
	return f, nil
}

// Date normalizes t to its calendar day at midnight UTC. All engine
// comparisons work at day granularity.
func Date(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from b to a.
func DaysBetween(a, b time.Time) int {
	return int(Date(a).Sub(Date(b)).Hours() / 24)
}

// DateRange is a closed [Start, End] day range.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a validated day-granular range.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Date(start), End: Date(end)}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate fails when the range start is after its end.
func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return errors.ValidationError(
			errors.CodeInvalidRange,
			"dateRange",
			fmt.Sprintf("%s > %s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02")),
		)
	}
	return nil
}

// Contains reports whether the day of t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Date(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns the number of days in the closed range.
func (r DateRange) Days() int {
	return DaysBetween(r.End, r.Start) + 1
}

// Transaction represents an imported ledger transaction. How rows become
// transactions (CSV import, column mapping) is outside the engine; the
// matcher only reads the fields below.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`

	// Set when the transaction has been linked to a recurring instance.
	LinkedRecurringID  *string    `json:"linkedRecurringId,omitempty"`
	LinkedInstanceDate *time.Time `json:"linkedInstanceDate,omitempty"`
}

// NewTransaction creates a new Transaction instance.
func NewTransaction(id string, date time.Time, amount decimal.Decimal, currency, description string) *Transaction {
	return &Transaction{
		ID:          id,
		Date:        Date(date),
		Amount:      amount,
		Currency:    strings.ToUpper(strings.TrimSpace(currency)),
		Description: description,
	}
}

// Validate performs basic validation on the Transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if strings.TrimSpace(t.Currency) == "" {
		return fmt.Errorf("transaction currency cannot be empty")
	}
	return nil
}

// IsLinked reports whether the transaction is already linked to a recurring
// instance.
func (t *Transaction) IsLinked() bool {
	return t.LinkedRecurringID != nil
}

// String returns a string representation of the Transaction.
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Date: %s, Amount: %s %s, Description: %q}",
		t.ID, t.Date.Format("2006-01-02"), t.Amount.String(), t.Currency, t.Description)
}

// ExceptionType distinguishes the two kinds of per-date schedule overrides.
type ExceptionType string

const (
	// ExceptionTypeSkip removes the occurrence on its date entirely.
	ExceptionTypeSkip ExceptionType = "SKIP"
	// ExceptionTypeModify keeps the occurrence but overrides its expected
	// amount and/or description.
	ExceptionTypeModify ExceptionType = "MODIFY"
)

// ScheduleException is a per-date override applied to one occurrence of a
// recurring transaction without altering the underlying schedule.
type ScheduleException struct {
	Date        time.Time        `json:"date"`
	Type        ExceptionType    `json:"type"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description *string          `json:"description,omitempty"`
}

// Validate performs basic validation on the exception.
func (e *ScheduleException) Validate() error {
	if e.Date.IsZero() {
		return fmt.Errorf("exception date cannot be zero")
	}
	switch e.Type {
	case ExceptionTypeSkip, ExceptionTypeModify:
	default:
		return fmt.Errorf("invalid exception type: %s", e.Type)
	}
	if e.Type == ExceptionTypeModify && e.Amount == nil && e.Description == nil {
		return fmt.Errorf("modify exception must override amount or description")
	}
	return nil
}

// RecurringTransaction is a template describing a periodic expected cash
// flow. AnchorDate fixes the day-of-week / day-of-month the schedule steps
// from; StartDate and EndDate bound the period during which occurrences are
// generated (EndDate nil means open-ended).
type RecurringTransaction struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Frequency   Frequency       `json:"frequency"`
	// Interval multiplies the frequency step: 1 = every period,
	// 2 = every other period. Zero is treated as 1.
	Interval   int        `json:"interval"`
	AnchorDate time.Time  `json:"anchorDate"`
	StartDate  time.Time  `json:"startDate"`
	EndDate    *time.Time `json:"endDate,omitempty"`
	Active     bool       `json:"active"`

	Exceptions []ScheduleException `json:"exceptions,omitempty"`
}

// Validate performs basic validation on the RecurringTransaction.
func (rt *RecurringTransaction) Validate() error {
	if strings.TrimSpace(rt.ID) == "" {
		return fmt.Errorf("recurring transaction ID cannot be empty")
	}
	if !rt.Frequency.IsValid() {
		return fmt.Errorf("invalid frequency: %s", rt.Frequency)
	}
	if rt.Interval < 0 {
		return fmt.Errorf("interval cannot be negative: %d", rt.Interval)
	}
	if rt.AnchorDate.IsZero() {
		return fmt.Errorf("anchor date cannot be zero")
	}
	if strings.TrimSpace(rt.Currency) == "" {
		return fmt.Errorf("recurring transaction currency cannot be empty")
	}
	if rt.EndDate != nil && rt.EndDate.Before(rt.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			rt.EndDate.Format("2006-01-02"), rt.StartDate.Format("2006-01-02"))
	}
	for i := range rt.Exceptions {
		if err := rt.Exceptions[i].Validate(); err != nil {
			return fmt.Errorf("exception %d: %w", i, err)
		}
	}
	return nil
}

// EffectiveInterval returns the interval with zero normalized to 1.
func (rt *RecurringTransaction) EffectiveInterval() int {
	if rt.Interval <= 0 {
		return 1
	}
	return rt.Interval
}

// ExceptionOn returns the exception for the given day, if any.
func (rt *RecurringTransaction) ExceptionOn(date time.Time) (*ScheduleException, bool) {
	d := Date(date)
	for i := range rt.Exceptions {
		if Date(rt.Exceptions[i].Date).Equal(d) {
			return &rt.Exceptions[i], true
		}
	}
	return nil, false
}

// String returns a string representation of the RecurringTransaction.
func (rt *RecurringTransaction) String() string {
	return fmt.Sprintf("RecurringTransaction{ID: %s, %s x%d, Amount: %s %s, Description: %q}",
		rt.ID, rt.Frequency, rt.EffectiveInterval(), rt.Amount.String(), rt.Currency, rt.Description)
}

// ScheduleInstance is one concrete dated expansion of a recurring
// transaction's schedule. Instances are regenerated on every projection and
// have no identity beyond (RecurringTransactionID, InstanceDate).
type ScheduleInstance struct {
	RecurringTransactionID string          `json:"recurringTransactionId"`
	InstanceDate           time.Time       `json:"instanceDate"`
	ExpectedAmount         decimal.Decimal `json:"expectedAmount"`
	Currency               string          `json:"currency"`
	Description            string          `json:"description"`
	IsSkipped              bool            `json:"isSkipped"`
}

// String returns a string representation of the ScheduleInstance.
func (si ScheduleInstance) String() string {
	return fmt.Sprintf("ScheduleInstance{%s @ %s, %s %s, skipped=%t}",
		si.RecurringTransactionID, si.InstanceDate.Format("2006-01-02"),
		si.ExpectedAmount.String(), si.Currency, si.IsSkipped)
}

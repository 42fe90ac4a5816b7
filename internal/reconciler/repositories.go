// Package reconciler orchestrates the reconciliation flow: projecting
// recurring schedules, scoring transactions against them, persisting the
// resulting matches, and driving match decisions.
package reconciler

import (
	"context"
	"time"

	"budget-reconciliation-service/internal/models"
)

// TransactionRepository provides imported transactions and records the
// linking side effect of an accepted match.
type TransactionRepository interface {
	// GetByID returns the transaction, or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, id string) (*models.Transaction, error)

	// LinkToRecurringInstance records that the transaction reconciles the
	// given recurring schedule instance.
	LinkToRecurringInstance(ctx context.Context, transactionID, recurringTransactionID string, instanceDate time.Time) error
}

// RecurringTransactionRepository provides recurring schedule definitions.
type RecurringTransactionRepository interface {
	// GetActive returns every active recurring transaction.
	GetActive(ctx context.Context) ([]*models.RecurringTransaction, error)

	// GetByID returns the recurring transaction, or (nil, nil) when it does
	// not exist.
	GetByID(ctx context.Context, id string) (*models.RecurringTransaction, error)
}

// ReconciliationMatchRepository persists reconciliation matches.
type ReconciliationMatchRepository interface {
	// Exists reports whether a match already records this exact pairing.
	Exists(ctx context.Context, transactionID, recurringTransactionID string, instanceDate time.Time) (bool, error)

	// Add stores a new match.
	Add(ctx context.Context, match models.ReconciliationMatch) error

	// Update replaces a stored match after a state transition.
	Update(ctx context.Context, match models.ReconciliationMatch) error

	// GetByID returns the match, or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, id string) (*models.ReconciliationMatch, error)

	// GetPending returns every match still awaiting a decision.
	GetPending(ctx context.Context) ([]models.ReconciliationMatch, error)

	// GetByRecurringTransaction returns the matches for a recurring
	// transaction whose instance date falls inside the range.
	GetByRecurringTransaction(ctx context.Context, recurringTransactionID string, r models.DateRange) ([]models.ReconciliationMatch, error)

	// GetByPeriod returns the matches whose instance date falls inside the
	// given calendar month.
	GetByPeriod(ctx context.Context, year int, month time.Month) ([]models.ReconciliationMatch, error)
}

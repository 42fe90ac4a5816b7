// Package storage provides the persistence implementations behind the
// reconciler's repository interfaces: a SQLite store for durable state and
// an in-memory store for tests and ephemeral runs.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/internal/reconciler"
	"budget-reconciliation-service/pkg/errors"
)

// MemoryStore holds all reconciliation state in process memory. It is safe
// for concurrent use. The repository interfaces are exposed as views
// (Transactions, Recurring, Matches) over the shared state.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]*models.Transaction
	recurring    map[string]*models.RecurringTransaction
	matches      map[string]models.ReconciliationMatch
	pairings     map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*models.Transaction),
		recurring:    make(map[string]*models.RecurringTransaction),
		matches:      make(map[string]models.ReconciliationMatch),
		pairings:     make(map[string]string),
	}
}

// Transactions returns the transaction repository view.
func (s *MemoryStore) Transactions() reconciler.TransactionRepository {
	return memoryTransactions{s}
}

// Recurring returns the recurring transaction repository view.
func (s *MemoryStore) Recurring() reconciler.RecurringTransactionRepository {
	return memoryRecurring{s}
}

// Matches returns the reconciliation match repository view.
func (s *MemoryStore) Matches() reconciler.ReconciliationMatchRepository {
	return memoryMatches{s}
}

// PutTransaction stores or replaces a transaction.
func (s *MemoryStore) PutTransaction(tx *models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *tx
	s.transactions[tx.ID] = &copied
}

// PutRecurringTransaction stores or replaces a recurring transaction.
func (s *MemoryStore) PutRecurringTransaction(rec *models.RecurringTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.recurring[rec.ID] = &copied
}

type memoryTransactions struct{ s *MemoryStore }

var _ reconciler.TransactionRepository = memoryTransactions{}

func (r memoryTransactions) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tx, ok := r.s.transactions[id]
	if !ok {
		return nil, nil
	}
	copied := *tx
	return &copied, nil
}

func (r memoryTransactions) LinkToRecurringInstance(ctx context.Context, transactionID, recurringTransactionID string, instanceDate time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.transactions[transactionID]
	if !ok {
		return errors.NotFoundError("transaction", transactionID)
	}
	date := models.Date(instanceDate)
	tx.LinkedRecurringID = &recurringTransactionID
	tx.LinkedInstanceDate = &date
	return nil
}

type memoryRecurring struct{ s *MemoryStore }

var _ reconciler.RecurringTransactionRepository = memoryRecurring{}

func (r memoryRecurring) GetActive(ctx context.Context) ([]*models.RecurringTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var active []*models.RecurringTransaction
	for _, rec := range r.s.recurring {
		if rec.Active {
			copied := *rec
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (r memoryRecurring) GetByID(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.recurring[id]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

type memoryMatches struct{ s *MemoryStore }

var _ reconciler.ReconciliationMatchRepository = memoryMatches{}

func (r memoryMatches) Exists(ctx context.Context, transactionID, recurringTransactionID string, instanceDate time.Time) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.pairings[pairingKey(transactionID, recurringTransactionID, instanceDate)]
	return ok, nil
}

func (r memoryMatches) Add(ctx context.Context, match models.ReconciliationMatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairingKey(match.TransactionID, match.RecurringTransactionID, match.RecurringInstanceDate)
	if _, ok := r.s.pairings[key]; ok {
		return errors.New(errors.CategoryStorage, errors.CodeConstraintViolation, "match already recorded for pairing "+key)
	}
	r.s.matches[match.ID] = match
	r.s.pairings[key] = match.ID
	return nil
}

func (r memoryMatches) Update(ctx context.Context, match models.ReconciliationMatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.matches[match.ID]; !ok {
		return errors.NotFoundError("match", match.ID)
	}
	r.s.matches[match.ID] = match
	return nil
}

func (r memoryMatches) GetByID(ctx context.Context, id string) (*models.ReconciliationMatch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	match, ok := r.s.matches[id]
	if !ok {
		return nil, nil
	}
	return &match, nil
}

func (r memoryMatches) GetPending(ctx context.Context) ([]models.ReconciliationMatch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var pending []models.ReconciliationMatch
	for _, match := range r.s.matches {
		if match.Status.IsPending() {
			pending = append(pending, match)
		}
	}
	sortMatches(pending)
	return pending, nil
}

func (r memoryMatches) GetByRecurringTransaction(ctx context.Context, recurringTransactionID string, dr models.DateRange) ([]models.ReconciliationMatch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.ReconciliationMatch
	for _, match := range r.s.matches {
		if match.RecurringTransactionID == recurringTransactionID && dr.Contains(match.RecurringInstanceDate) {
			out = append(out, match)
		}
	}
	sortMatches(out)
	return out, nil
}

func (r memoryMatches) GetByPeriod(ctx context.Context, year int, month time.Month) ([]models.ReconciliationMatch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.ReconciliationMatch
	for _, match := range r.s.matches {
		if match.RecurringInstanceDate.Year() == year && match.RecurringInstanceDate.Month() == month {
			out = append(out, match)
		}
	}
	sortMatches(out)
	return out, nil
}

func sortMatches(matches []models.ReconciliationMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].RecurringInstanceDate.Equal(matches[j].RecurringInstanceDate) {
			return matches[i].RecurringInstanceDate.Before(matches[j].RecurringInstanceDate)
		}
		return matches[i].ID < matches[j].ID
	})
}

func pairingKey(transactionID, recurringTransactionID string, instanceDate time.Time) string {
	return transactionID + "|" + recurringTransactionID + "|" + models.Date(instanceDate).Format("2006-01-02")
}

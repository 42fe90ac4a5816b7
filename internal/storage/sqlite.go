package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/internal/reconciler"
	"budget-reconciliation-service/pkg/errors"
	"budget-reconciliation-service/pkg/logger"
)

const (
	dateFormat      = "2006-01-02"
	timestampFormat = time.RFC3339Nano
)

// SQLiteStore is the durable implementation of the repository interfaces.
// Amounts are stored as decimal strings to avoid float drift, dates as
// ISO-8601 day strings, and the match table enforces pairing uniqueness
// with a composite constraint.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// applies pending migrations. Foreign keys are enforced.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "opening database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeQueryFailed, "connecting to database", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("sqlite"),
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Transactions returns the transaction repository view.
func (s *SQLiteStore) Transactions() reconciler.TransactionRepository {
	return sqliteTransactions{s}
}

// Recurring returns the recurring transaction repository view.
func (s *SQLiteStore) Recurring() reconciler.RecurringTransactionRepository {
	return sqliteRecurring{s}
}

// Matches returns the reconciliation match repository view.
func (s *SQLiteStore) Matches() reconciler.ReconciliationMatchRepository {
	return sqliteMatches{s}
}

// SaveTransaction inserts or replaces a transaction.
func (s *SQLiteStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	var linkedID, linkedDate interface{}
	if tx.LinkedRecurringID != nil {
		linkedID = *tx.LinkedRecurringID
	}
	if tx.LinkedInstanceDate != nil {
		linkedDate = tx.LinkedInstanceDate.Format(dateFormat)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions
			(id, date, amount, currency, description, linked_recurring_id, linked_instance_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Date.Format(dateFormat), tx.Amount.String(), tx.Currency, tx.Description, linkedID, linkedDate)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "saving transaction", err)
	}
	return nil
}

// SaveRecurringTransaction inserts or replaces a recurring transaction and
// its schedule exceptions.
func (s *SQLiteStore) SaveRecurringTransaction(ctx context.Context, rec *models.RecurringTransaction) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "starting transaction", err)
	}
	defer dbTx.Rollback()

	var endDate interface{}
	if rec.EndDate != nil {
		endDate = rec.EndDate.Format(dateFormat)
	}
	_, err = dbTx.ExecContext(ctx, `
		INSERT OR REPLACE INTO recurring_transactions
			(id, description, amount, currency, frequency, interval, anchor_date, start_date, end_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Description, rec.Amount.String(), rec.Currency, string(rec.Frequency),
		rec.EffectiveInterval(), rec.AnchorDate.Format(dateFormat), rec.StartDate.Format(dateFormat),
		endDate, boolToInt(rec.Active))
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "saving recurring transaction", err)
	}

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM schedule_exceptions WHERE recurring_transaction_id = ?`, rec.ID); err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "clearing schedule exceptions", err)
	}
	for _, exc := range rec.Exceptions {
		var amount, description interface{}
		if exc.Amount != nil {
			amount = exc.Amount.String()
		}
		if exc.Description != nil {
			description = *exc.Description
		}
		_, err := dbTx.ExecContext(ctx, `
			INSERT INTO schedule_exceptions
				(recurring_transaction_id, exception_date, type, amount, description)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, exc.Date.Format(dateFormat), string(exc.Type), amount, description)
		if err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "saving schedule exception", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "committing recurring transaction", err)
	}
	return nil
}

type sqliteTransactions struct{ s *SQLiteStore }

var _ reconciler.TransactionRepository = sqliteTransactions{}

func (r sqliteTransactions) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, date, amount, currency, description, linked_recurring_id, linked_instance_date
		FROM transactions WHERE id = ?`, id)

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "loading transaction", err)
	}
	return tx, nil
}

func (r sqliteTransactions) LinkToRecurringInstance(ctx context.Context, transactionID, recurringTransactionID string, instanceDate time.Time) error {
	res, err := r.s.db.ExecContext(ctx, `
		UPDATE transactions SET linked_recurring_id = ?, linked_instance_date = ? WHERE id = ?`,
		recurringTransactionID, models.Date(instanceDate).Format(dateFormat), transactionID)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "linking transaction", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "linking transaction", err)
	}
	if affected == 0 {
		return errors.NotFoundError("transaction", transactionID)
	}
	return nil
}

type sqliteRecurring struct{ s *SQLiteStore }

var _ reconciler.RecurringTransactionRepository = sqliteRecurring{}

func (r sqliteRecurring) GetActive(ctx context.Context) ([]*models.RecurringTransaction, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, description, amount, currency, frequency, interval, anchor_date, start_date, end_date, active
		FROM recurring_transactions WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "loading active recurring transactions", err)
	}
	defer rows.Close()

	var recs []*models.RecurringTransaction
	for rows.Next() {
		rec, err := scanRecurring(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "loading active recurring transactions", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "loading active recurring transactions", err)
	}

	for _, rec := range recs {
		if err := r.loadExceptions(ctx, rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (r sqliteRecurring) GetByID(ctx context.Context, id string) (*models.RecurringTransaction, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, description, amount, currency, frequency, interval, anchor_date, start_date, end_date, active
		FROM recurring_transactions WHERE id = ?`, id)

	rec, err := scanRecurring(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "loading recurring transaction", err)
	}
	if err := r.loadExceptions(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r sqliteRecurring) loadExceptions(ctx context.Context, rec *models.RecurringTransaction) error {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT exception_date, type, amount, description
		FROM schedule_exceptions WHERE recurring_transaction_id = ? ORDER BY exception_date`, rec.ID)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "loading schedule exceptions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dateStr     string
			excType     string
			amount      sql.NullString
			description sql.NullString
		)
		if err := rows.Scan(&dateStr, &excType, &amount, &description); err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "loading schedule exceptions", err)
		}

		exc := models.ScheduleException{Type: models.ExceptionType(excType)}
		if exc.Date, err = time.Parse(dateFormat, dateStr); err != nil {
			return errors.StorageError(errors.CodeQueryFailed, "parsing exception date", err)
		}
		if amount.Valid {
			value, err := decimal.NewFromString(amount.String)
			if err != nil {
				return errors.StorageError(errors.CodeQueryFailed, "parsing exception amount", err)
			}
			exc.Amount = &value
		}
		if description.Valid {
			desc := description.String
			exc.Description = &desc
		}
		rec.Exceptions = append(rec.Exceptions, exc)
	}
	return rows.Err()
}

type sqliteMatches struct{ s *SQLiteStore }

var _ reconciler.ReconciliationMatchRepository = sqliteMatches{}

const matchColumns = `id, transaction_id, recurring_transaction_id, recurring_instance_date,
	confidence_score, status, amount_variance, date_offset_days, created_at_utc, resolved_at_utc, scope, owner_user_id`

func (r sqliteMatches) Exists(ctx context.Context, transactionID, recurringTransactionID string, instanceDate time.Time) (bool, error) {
	var count int
	err := r.s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM reconciliation_matches
		WHERE transaction_id = ? AND recurring_transaction_id = ? AND recurring_instance_date = ?`,
		transactionID, recurringTransactionID, models.Date(instanceDate).Format(dateFormat)).Scan(&count)
	if err != nil {
		return false, errors.StorageError(errors.CodeQueryFailed, "checking for existing match", err)
	}
	return count > 0, nil
}

func (r sqliteMatches) Add(ctx context.Context, match models.ReconciliationMatch) error {
	var resolved interface{}
	if match.ResolvedAtUTC != nil {
		resolved = match.ResolvedAtUTC.Format(timestampFormat)
	}

	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		match.ID, match.TransactionID, match.RecurringTransactionID,
		match.RecurringInstanceDate.Format(dateFormat), match.ConfidenceScore, string(match.Status),
		match.AmountVariance.String(), match.DateOffsetDays,
		match.CreatedAtUTC.Format(timestampFormat), resolved, string(match.Scope), match.OwnerUserID)
	if err != nil {
		if isConstraintViolation(err) {
			return errors.StorageError(errors.CodeConstraintViolation, "adding match", err)
		}
		return errors.StorageError(errors.CodeQueryFailed, "adding match", err)
	}
	return nil
}

func (r sqliteMatches) Update(ctx context.Context, match models.ReconciliationMatch) error {
	var resolved interface{}
	if match.ResolvedAtUTC != nil {
		resolved = match.ResolvedAtUTC.Format(timestampFormat)
	}

	res, err := r.s.db.ExecContext(ctx, `
		UPDATE reconciliation_matches
		SET confidence_score = ?, status = ?, resolved_at_utc = ?
		WHERE id = ?`,
		match.ConfidenceScore, string(match.Status), resolved, match.ID)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "updating match", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "updating match", err)
	}
	if affected == 0 {
		return errors.NotFoundError("match", match.ID)
	}
	return nil
}

func (r sqliteMatches) GetByID(ctx context.Context, id string) (*models.ReconciliationMatch, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT `+matchColumns+` FROM reconciliation_matches WHERE id = ?`, id)

	match, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "loading match", err)
	}
	return match, nil
}

func (r sqliteMatches) GetPending(ctx context.Context) ([]models.ReconciliationMatch, error) {
	return r.queryMatches(ctx, `
		SELECT `+matchColumns+` FROM reconciliation_matches
		WHERE status = ? ORDER BY recurring_instance_date, id`, string(models.StatusSuggested))
}

func (r sqliteMatches) GetByRecurringTransaction(ctx context.Context, recurringTransactionID string, dr models.DateRange) ([]models.ReconciliationMatch, error) {
	return r.queryMatches(ctx, `
		SELECT `+matchColumns+` FROM reconciliation_matches
		WHERE recurring_transaction_id = ? AND recurring_instance_date BETWEEN ? AND ?
		ORDER BY recurring_instance_date, id`,
		recurringTransactionID, dr.Start.Format(dateFormat), dr.End.Format(dateFormat))
}

func (r sqliteMatches) GetByPeriod(ctx context.Context, year int, month time.Month) ([]models.ReconciliationMatch, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return r.queryMatches(ctx, `
		SELECT `+matchColumns+` FROM reconciliation_matches
		WHERE recurring_instance_date BETWEEN ? AND ?
		ORDER BY recurring_instance_date, id`,
		start.Format(dateFormat), end.Format(dateFormat))
}

func (r sqliteMatches) queryMatches(ctx context.Context, query string, args ...interface{}) ([]models.ReconciliationMatch, error) {
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "querying matches", err)
	}
	defer rows.Close()

	var matches []models.ReconciliationMatch
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "scanning match", err)
		}
		matches = append(matches, *match)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "querying matches", err)
	}
	return matches, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx         models.Transaction
		dateStr    string
		amountStr  string
		linkedID   sql.NullString
		linkedDate sql.NullString
	)
	if err := row.Scan(&tx.ID, &dateStr, &amountStr, &tx.Currency, &tx.Description, &linkedID, &linkedDate); err != nil {
		return nil, err
	}

	var err error
	if tx.Date, err = time.Parse(dateFormat, dateStr); err != nil {
		return nil, err
	}
	if tx.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, err
	}
	if linkedID.Valid {
		id := linkedID.String
		tx.LinkedRecurringID = &id
	}
	if linkedDate.Valid {
		date, err := time.Parse(dateFormat, linkedDate.String)
		if err != nil {
			return nil, err
		}
		tx.LinkedInstanceDate = &date
	}
	return &tx, nil
}

func scanRecurring(row rowScanner) (*models.RecurringTransaction, error) {
	var (
		rec       models.RecurringTransaction
		amountStr string
		frequency string
		anchorStr string
		startStr  string
		endStr    sql.NullString
		active    int
	)
	if err := row.Scan(&rec.ID, &rec.Description, &amountStr, &rec.Currency, &frequency,
		&rec.Interval, &anchorStr, &startStr, &endStr, &active); err != nil {
		return nil, err
	}

	var err error
	if rec.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, err
	}
	rec.Frequency = models.Frequency(frequency)
	if rec.AnchorDate, err = time.Parse(dateFormat, anchorStr); err != nil {
		return nil, err
	}
	if rec.StartDate, err = time.Parse(dateFormat, startStr); err != nil {
		return nil, err
	}
	if endStr.Valid {
		end, err := time.Parse(dateFormat, endStr.String)
		if err != nil {
			return nil, err
		}
		rec.EndDate = &end
	}
	rec.Active = active != 0
	return &rec, nil
}

func scanMatch(row rowScanner) (*models.ReconciliationMatch, error) {
	var (
		match       models.ReconciliationMatch
		instanceStr string
		status      string
		varianceStr string
		createdStr  string
		resolvedStr sql.NullString
		scope       string
	)
	if err := row.Scan(&match.ID, &match.TransactionID, &match.RecurringTransactionID, &instanceStr,
		&match.ConfidenceScore, &status, &varianceStr, &match.DateOffsetDays,
		&createdStr, &resolvedStr, &scope, &match.OwnerUserID); err != nil {
		return nil, err
	}

	var err error
	if match.RecurringInstanceDate, err = time.Parse(dateFormat, instanceStr); err != nil {
		return nil, err
	}
	match.Status = models.MatchStatus(status)
	if match.AmountVariance, err = decimal.NewFromString(varianceStr); err != nil {
		return nil, err
	}
	if match.CreatedAtUTC, err = time.Parse(timestampFormat, createdStr); err != nil {
		return nil, err
	}
	if resolvedStr.Valid {
		resolved, err := time.Parse(timestampFormat, resolvedStr.String)
		if err != nil {
			return nil, err
		}
		match.ResolvedAtUTC = &resolved
	}
	match.Scope = models.MatchScope(scope)
	return &match, nil
}

func isConstraintViolation(err error) bool {
	sqliteErr, ok := err.(sqlite3.Error)
	return ok && sqliteErr.Code == sqlite3.ErrConstraint
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

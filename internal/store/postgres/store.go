// Package postgres is the Store adapter (spec.md §4.1) backed by
// PostgreSQL via sqlx/pgx, grounded on the teacher's
// BaseRepository[T]/HandleSQLError pattern but built around single
// conditional statements rather than a generic CRUD layer, since every
// operation here (get-or-create, compare-and-decrement, conditional
// status transition) needs its own atomicity story.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/zenalign/tokencore/internal/domain"
	pkgerrors "github.com/zenalign/tokencore/pkg/errors"
)

// ErrDuplicateReference is returned by InsertTransaction when reference
// already exists. The orchestrator passes it up wrapped in ErrStorageError
// without retrying; a caller that retries the purchase gets a fresh
// reference.
var ErrDuplicateReference = errors.New("postgres: duplicate transaction reference")

// Store implements domain.Store.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn using the pgx stdlib driver and verifies
// connectivity with a ping.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func handleSQLError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrUnknownUser
	}
	return pkgerrors.ErrStorageError.Wrap(err)
}

// GetOrCreateBalance implements domain.Store.
func (s *Store) GetOrCreateBalance(ctx context.Context, userKey string, freeGrant int64) (domain.UserBalance, bool, error) {
	const insertQuery = `
		INSERT INTO user_balances (user_key, balance, total_purchased, total_consumed)
		VALUES ($1, $2, $2, 0)
		ON CONFLICT (user_key) DO NOTHING
		RETURNING user_key, balance, total_purchased, total_consumed, last_purchase_at, created_at, updated_at
	`

	var balance domain.UserBalance
	err := s.db.GetContext(ctx, &balance, insertQuery, userKey, freeGrant)
	if err == nil {
		return balance, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.UserBalance{}, false, pkgerrors.ErrStorageError.Wrap(err)
	}

	// Someone else won the insert race (or the row already existed); load it.
	const selectQuery = `
		SELECT user_key, balance, total_purchased, total_consumed, last_purchase_at, created_at, updated_at
		FROM user_balances WHERE user_key = $1
	`
	if err := s.db.GetContext(ctx, &balance, selectQuery, userKey); err != nil {
		return domain.UserBalance{}, false, pkgerrors.ErrStorageError.Wrap(err)
	}
	return balance, false, nil
}

// Credit implements domain.Store. Linearizable with TryDebit via the
// single UPDATE statement.
func (s *Store) Credit(ctx context.Context, userKey string, qty int64, purchaseAt time.Time) (domain.UserBalance, error) {
	const query = `
		UPDATE user_balances
		SET balance = balance + $2,
		    total_purchased = total_purchased + $2,
		    last_purchase_at = $3,
		    updated_at = now()
		WHERE user_key = $1
		RETURNING user_key, balance, total_purchased, total_consumed, last_purchase_at, created_at, updated_at
	`
	var balance domain.UserBalance
	if err := s.db.GetContext(ctx, &balance, query, userKey, qty, purchaseAt); err != nil {
		return domain.UserBalance{}, handleSQLError(err)
	}
	return balance, nil
}

// TryDebit implements domain.Store. The WHERE clause makes the
// compare-and-decrement atomic at the database row-lock level; no
// negative balance can ever be observed.
func (s *Store) TryDebit(ctx context.Context, userKey string, qty int64) (domain.DebitOutcome, error) {
	const updateQuery = `
		UPDATE user_balances
		SET balance = balance - $2,
		    total_consumed = total_consumed + $2,
		    updated_at = now()
		WHERE user_key = $1 AND balance >= $2
		RETURNING balance
	`
	var newBalance int64
	err := s.db.GetContext(ctx, &newBalance, updateQuery, userKey, qty)
	if err == nil {
		return domain.DebitOutcome{OK: true, NewBalance: newBalance}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.DebitOutcome{}, pkgerrors.ErrStorageError.Wrap(err)
	}

	const currentQuery = `SELECT balance FROM user_balances WHERE user_key = $1`
	var current int64
	if err := s.db.GetContext(ctx, &current, currentQuery, userKey); err != nil {
		return domain.DebitOutcome{}, handleSQLError(err)
	}
	return domain.DebitOutcome{OK: false, CurrentBalance: current}, nil
}

// InsertTransaction implements domain.Store.
func (s *Store) InsertTransaction(ctx context.Context, tx domain.PaymentTransaction) error {
	const query = `
		INSERT INTO payment_transactions
			(reference, user_key, amount, currency, token_qty, status, gateway_payload, credit_applied, created_at, updated_at)
		VALUES (:reference, :user_key, :amount, :currency, :token_qty, :status, :gateway_payload, :credit_applied, :created_at, :updated_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, tx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return pkgerrors.ErrStorageError.Wrap(err)
	}
	return nil
}

// GetTransaction implements domain.Store.
func (s *Store) GetTransaction(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	const query = `
		SELECT reference, user_key, amount, currency, token_qty, status, gateway_payload, credit_applied, created_at, updated_at, completed_at
		FROM payment_transactions WHERE reference = $1
	`
	var tx domain.PaymentTransaction
	err := s.db.GetContext(ctx, &tx, query, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentTransaction{}, pkgerrors.ErrUnknownReference
	}
	if err != nil {
		return domain.PaymentTransaction{}, pkgerrors.ErrStorageError.Wrap(err)
	}
	return tx, nil
}

// UpdateTransactionStatus implements domain.Store. The WHERE status =
// $expected clause is the exactly-once credit invariant's enforcement
// point (spec.md §4.5): at most one concurrent caller observes
// applied=true for a given expected->target transition.
func (s *Store) UpdateTransactionStatus(ctx context.Context, reference string, expected, target domain.TransactionStatus, gatewayPayload *string, completedAt *time.Time) (domain.PaymentTransaction, bool, error) {
	const updateQuery = `
		UPDATE payment_transactions
		SET status = $3, gateway_payload = $4, completed_at = $5, updated_at = now()
		WHERE reference = $1 AND status = $2
		RETURNING reference, user_key, amount, currency, token_qty, status, gateway_payload, credit_applied, created_at, updated_at, completed_at
	`
	var tx domain.PaymentTransaction
	err := s.db.GetContext(ctx, &tx, updateQuery, reference, expected, target, gatewayPayload, completedAt)
	if err == nil {
		return tx, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentTransaction{}, false, pkgerrors.ErrStorageError.Wrap(err)
	}

	// No row matched (expected,reference) — load current state so the
	// caller can decide whether this is "already in target state"
	// (benign, lost the race) or a genuine conflict.
	current, err := s.GetTransaction(ctx, reference)
	if err != nil {
		return domain.PaymentTransaction{}, false, err
	}
	return current, false, nil
}

// MarkCreditApplied implements domain.Store.
func (s *Store) MarkCreditApplied(ctx context.Context, reference string) error {
	const query = `UPDATE payment_transactions SET credit_applied = true, updated_at = now() WHERE reference = $1`
	res, err := s.db.ExecContext(ctx, query, reference)
	if err != nil {
		return pkgerrors.ErrStorageError.Wrap(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.ErrStorageError.Wrap(err)
	}
	if rows == 0 {
		return pkgerrors.ErrUnknownReference
	}
	return nil
}

// AppendConsumption implements domain.Store.
func (s *Store) AppendConsumption(ctx context.Context, entry domain.ConsumptionEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO consumption_entries (id, user_key, token_qty, service_kind, work_item_id, description, consumed_at)
		VALUES (:id, :user_key, :token_qty, :service_kind, :work_item_id, :description, :consumed_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return pkgerrors.ErrStorageError.Wrap(err)
	}
	return nil
}

// ListConsumption implements domain.Store.
func (s *Store) ListConsumption(ctx context.Context, userKey string, limit int) ([]domain.ConsumptionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, user_key, token_qty, service_kind, work_item_id, description, consumed_at
		FROM consumption_entries
		WHERE user_key = $1
		ORDER BY consumed_at DESC
		LIMIT $2
	`
	entries := make([]domain.ConsumptionEntry, 0, limit)
	if err := s.db.SelectContext(ctx, &entries, query, userKey, limit); err != nil {
		return nil, pkgerrors.ErrStorageError.Wrap(err)
	}
	return entries, nil
}

// ListExpiredPending implements domain.Store. Sweeping never touches
// successful/failed/cancelled rows since the WHERE clause filters on
// status = 'pending' explicitly.
func (s *Store) ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT reference, user_key, amount, currency, token_qty, status, gateway_payload, credit_applied, created_at, updated_at, completed_at
		FROM payment_transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	txs := make([]domain.PaymentTransaction, 0, limit)
	if err := s.db.SelectContext(ctx, &txs, query, olderThan, limit); err != nil {
		return nil, pkgerrors.ErrStorageError.Wrap(err)
	}
	return txs, nil
}

func isUniqueViolation(err error) bool {
	// pgx/v5 stdlib surfaces *pgconn.PgError; code 23505 is unique_violation.
	type pgCoder interface{ SQLState() string }
	var pgErr pgCoder
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

package domain

import (
	"context"
	"time"
)

// Store is the persistence port for balances, transactions, and the
// consumption log (spec.md §4.1). Any backend satisfying the stated
// isolation is acceptable; internal/store/postgres is the one adapter this
// module ships.
//
// All operations must be linearizable per-user_key. UpdateTransactionStatus
// is the idempotency keystone: it must only apply the transition when the
// row's current status equals expected, reporting applied=false (not an
// error) when it does not, so the orchestrator can distinguish "I won the
// race" from "someone else already did".
type Store interface {
	// GetOrCreateBalance atomically creates a UserBalance with the free
	// grant applied if none exists for userKey, or returns the existing
	// row unchanged. wasCreated is true only for the caller that won the
	// race to insert.
	GetOrCreateBalance(ctx context.Context, userKey string, freeGrant int64) (balance UserBalance, wasCreated bool, err error)

	// Credit atomically increments Balance and TotalPurchased by qty and
	// stamps LastPurchaseAt. Must be linearizable with TryDebit.
	Credit(ctx context.Context, userKey string, qty int64, purchaseAt time.Time) (UserBalance, error)

	// TryDebit atomically decrements Balance by qty only if Balance >= qty.
	// Must never allow Balance to go negative under any interleaving.
	TryDebit(ctx context.Context, userKey string, qty int64) (DebitOutcome, error)

	// InsertTransaction inserts a new pending PaymentTransaction. A unique
	// constraint violation on Reference must surface as a distinguishable,
	// retryable error (see postgres.ErrDuplicateReference).
	InsertTransaction(ctx context.Context, tx PaymentTransaction) error

	// GetTransaction loads a transaction by reference.
	GetTransaction(ctx context.Context, reference string) (PaymentTransaction, error)

	// UpdateTransactionStatus conditionally transitions a transaction from
	// expected to target, attaching gatewayPayload and completedAt (both
	// optional). applied is false, with no error, when the row's current
	// status was not expected — the caller lost the race or the row was
	// already in the target state.
	UpdateTransactionStatus(ctx context.Context, reference string, expected, target TransactionStatus, gatewayPayload *string, completedAt *time.Time) (tx PaymentTransaction, applied bool, err error)

	// MarkCreditApplied flips PaymentTransaction.CreditApplied to true for
	// reference. Used immediately after a successful TokenLedger.Credit so
	// a crashed process can detect, on resume, whether the credit for an
	// already-successful transaction still needs to be replayed.
	MarkCreditApplied(ctx context.Context, reference string) error

	// AppendConsumption unconditionally appends a ConsumptionEntry.
	AppendConsumption(ctx context.Context, entry ConsumptionEntry) error

	// ListConsumption returns up to limit entries for userKey, newest
	// first.
	ListConsumption(ctx context.Context, userKey string, limit int) ([]ConsumptionEntry, error)

	// ListExpiredPending returns up to limit transactions still pending
	// whose CreatedAt is older than olderThan, oldest first — the
	// candidate set for the optional TTL sweep named in spec.md §4.5's
	// "Timeouts and TTL" note. Never returns a transaction in any
	// terminal status.
	ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]PaymentTransaction, error)
}

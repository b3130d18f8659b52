// Package ledger implements TokenLedger (spec.md §4.4): the read-through
// cached facade over the Store's balance and consumption-history
// operations. Caching follows the teacher's Redis-wrapper pattern
// (internal/infrastructure/store/redis.go) generalized to the pluggable
// internal/cache.Cache interface, invalidating on every write so readers
// never observe a balance older than the most recent credit/debit they
// themselves (or a concurrent caller) committed.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/cache"
	"github.com/zenalign/tokencore/internal/domain"
)

const balanceCacheTTL = 30 * time.Second

func balanceCacheKey(userKey string) string {
	return "balance:" + userKey
}

// Ledger is the concrete TokenLedger.
type Ledger struct {
	store     domain.Store
	cache     cache.Cache
	freeGrant int64
	logger    *zap.Logger
}

// New constructs a Ledger. freeGrant is the token quantity credited on a
// user's first-ever balance lookup (spec.md §4.4/Edge Cases).
func New(store domain.Store, c cache.Cache, freeGrant int64, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, cache: c, freeGrant: freeGrant, logger: logger}
}

// BalanceOf implements the balance_of operation. The cache holds the full
// UserBalance row (JSON-encoded) so a cache hit within the TTL still
// reports TotalPurchased/TotalConsumed/timestamps correctly, not just the
// current balance.
func (l *Ledger) BalanceOf(ctx context.Context, userKey string) (domain.UserBalance, error) {
	if cached, ok := l.cache.Get(ctx, balanceCacheKey(userKey)); ok {
		var balance domain.UserBalance
		if err := json.Unmarshal([]byte(cached), &balance); err == nil {
			return balance, nil
		}
	}

	balance, created, err := l.store.GetOrCreateBalance(ctx, userKey, l.freeGrant)
	if err != nil {
		return domain.UserBalance{}, err
	}
	if created {
		l.logger.Info("ledger: free grant issued", zap.String("user_key", userKey), zap.Int64("tokens", l.freeGrant))
	}

	l.cacheBalance(ctx, balance)
	return balance, nil
}

// cacheBalance writes the full row to cache, logging and otherwise
// ignoring a marshal failure — a cache write is never allowed to fail the
// caller's read.
func (l *Ledger) cacheBalance(ctx context.Context, balance domain.UserBalance) {
	encoded, err := json.Marshal(balance)
	if err != nil {
		l.logger.Warn("ledger: failed to encode balance for cache", zap.String("user_key", balance.UserKey), zap.Error(err))
		return
	}
	l.cache.Set(ctx, balanceCacheKey(balance.UserKey), string(encoded), balanceCacheTTL)
}

// Credit implements the credit operation: unconditional, idempotency is the
// caller's (orchestrator's) responsibility via the transaction state
// machine. Invalidates the cache rather than writing through it, so the
// next BalanceOf reload is always consistent with what was just committed.
func (l *Ledger) Credit(ctx context.Context, userKey string, qty int64) (domain.UserBalance, error) {
	balance, err := l.store.Credit(ctx, userKey, qty, time.Now().UTC())
	if err != nil {
		return domain.UserBalance{}, err
	}
	l.cache.Delete(ctx, balanceCacheKey(userKey))
	return balance, nil
}

// TryDebit implements the debit operation: atomic compare-and-decrement,
// never taking a balance negative (spec.md §8 invariant).
func (l *Ledger) TryDebit(ctx context.Context, userKey string, qty int64) (domain.DebitOutcome, error) {
	outcome, err := l.store.TryDebit(ctx, userKey, qty)
	if err != nil {
		return domain.DebitOutcome{}, err
	}
	if outcome.OK {
		l.cache.Delete(ctx, balanceCacheKey(userKey))
	}
	return outcome, nil
}

// RecordConsumption appends a consumption_entries row for an already
// successful debit.
func (l *Ledger) RecordConsumption(ctx context.Context, entry domain.ConsumptionEntry) error {
	if entry.ConsumedAt.IsZero() {
		entry.ConsumedAt = time.Now().UTC()
	}
	return l.store.AppendConsumption(ctx, entry)
}

// ConsumptionHistory implements the consumption_history operation.
func (l *Ledger) ConsumptionHistory(ctx context.Context, userKey string, limit int) ([]domain.ConsumptionEntry, error) {
	return l.store.ListConsumption(ctx, userKey, limit)
}

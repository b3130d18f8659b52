package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/cache"
	"github.com/zenalign/tokencore/internal/domain"
)

// fakeStore is an in-memory domain.Store stand-in, grounded on the same
// compare-and-decrement / get-or-create semantics as
// internal/store/postgres.Store, used here to exercise Ledger without a
// live database.
type fakeStore struct {
	mu      sync.Mutex
	balance map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{balance: make(map[string]int64)}
}

func (f *fakeStore) GetOrCreateBalance(ctx context.Context, userKey string, freeGrant int64) (domain.UserBalance, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balance[userKey]; ok {
		return domain.UserBalance{UserKey: userKey, Balance: b}, false, nil
	}
	f.balance[userKey] = freeGrant
	return domain.UserBalance{UserKey: userKey, Balance: freeGrant}, true, nil
}

func (f *fakeStore) Credit(ctx context.Context, userKey string, qty int64, purchaseAt time.Time) (domain.UserBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance[userKey] += qty
	return domain.UserBalance{UserKey: userKey, Balance: f.balance[userKey]}, nil
}

func (f *fakeStore) TryDebit(ctx context.Context, userKey string, qty int64) (domain.DebitOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance[userKey] < qty {
		return domain.DebitOutcome{OK: false, CurrentBalance: f.balance[userKey]}, nil
	}
	f.balance[userKey] -= qty
	return domain.DebitOutcome{OK: true, NewBalance: f.balance[userKey]}, nil
}

func (f *fakeStore) InsertTransaction(ctx context.Context, tx domain.PaymentTransaction) error {
	return nil
}
func (f *fakeStore) GetTransaction(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	return domain.PaymentTransaction{}, nil
}
func (f *fakeStore) UpdateTransactionStatus(ctx context.Context, reference string, expected, target domain.TransactionStatus, gatewayPayload *string, completedAt *time.Time) (domain.PaymentTransaction, bool, error) {
	return domain.PaymentTransaction{}, false, nil
}
func (f *fakeStore) MarkCreditApplied(ctx context.Context, reference string) error { return nil }
func (f *fakeStore) AppendConsumption(ctx context.Context, entry domain.ConsumptionEntry) error {
	return nil
}
func (f *fakeStore) ListConsumption(ctx context.Context, userKey string, limit int) ([]domain.ConsumptionEntry, error) {
	return nil, nil
}
func (f *fakeStore) ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentTransaction, error) {
	return nil, nil
}

var _ domain.Store = (*fakeStore)(nil)

func TestBalanceOf_FreeGrantIssuedOnce(t *testing.T) {
	store := newFakeStore()
	l := New(store, cache.NewMemory(time.Minute), 100, zap.NewNop())
	ctx := context.Background()

	b1, err := l.BalanceOf(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), b1.Balance)

	b2, err := l.BalanceOf(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), b2.Balance)

	store.mu.Lock()
	grants := store.balance["user-1"]
	store.mu.Unlock()
	assert.Equal(t, int64(100), grants, "free grant must only ever be applied once")
}

func TestCredit_InvalidatesCache(t *testing.T) {
	store := newFakeStore()
	l := New(store, cache.NewMemory(time.Minute), 0, zap.NewNop())
	ctx := context.Background()

	_, err := l.BalanceOf(ctx, "user-1")
	require.NoError(t, err)

	_, err = l.Credit(ctx, "user-1", 50)
	require.NoError(t, err)

	b, err := l.BalanceOf(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), b.Balance, "balance read after credit must reflect the credit, not a stale cache entry")
}

func TestTryDebit_NeverGoesNegative(t *testing.T) {
	store := newFakeStore()
	store.balance["user-1"] = 10
	l := New(store, cache.NewMemory(time.Minute), 0, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]domain.DebitOutcome, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := l.TryDebit(ctx, "user-1", 3)
			require.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, r := range results {
		if r.OK {
			ok++
		}
	}
	assert.Equal(t, 3, ok, "exactly 3 debits of 3 tokens should succeed against a balance of 10")

	store.mu.Lock()
	final := store.balance["user-1"]
	store.mu.Unlock()
	assert.GreaterOrEqual(t, final, int64(0))
}

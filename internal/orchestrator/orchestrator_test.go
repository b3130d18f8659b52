package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/cache"
	"github.com/zenalign/tokencore/internal/config"
	"github.com/zenalign/tokencore/internal/domain"
	"github.com/zenalign/tokencore/internal/events"
	"github.com/zenalign/tokencore/internal/ledger"
	"github.com/zenalign/tokencore/internal/pricing"
)

// fakeStore is a minimal in-memory domain.Store that reproduces the
// conditional-UPDATE exactly-once semantics of
// internal/store/postgres.Store.UpdateTransactionStatus, so the
// orchestrator's race handling can be exercised without a live database.
type fakeStore struct {
	mu           sync.Mutex
	balances     map[string]int64
	transactions map[string]domain.PaymentTransaction
	credits      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		balances:     make(map[string]int64),
		transactions: make(map[string]domain.PaymentTransaction),
	}
}

func (f *fakeStore) GetOrCreateBalance(ctx context.Context, userKey string, freeGrant int64) (domain.UserBalance, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[userKey]; ok {
		return domain.UserBalance{UserKey: userKey, Balance: b}, false, nil
	}
	f.balances[userKey] = freeGrant
	return domain.UserBalance{UserKey: userKey, Balance: freeGrant}, true, nil
}

func (f *fakeStore) Credit(ctx context.Context, userKey string, qty int64, purchaseAt time.Time) (domain.UserBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userKey] += qty
	f.credits++
	return domain.UserBalance{UserKey: userKey, Balance: f.balances[userKey]}, nil
}

func (f *fakeStore) TryDebit(ctx context.Context, userKey string, qty int64) (domain.DebitOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[userKey] < qty {
		return domain.DebitOutcome{OK: false, CurrentBalance: f.balances[userKey]}, nil
	}
	f.balances[userKey] -= qty
	return domain.DebitOutcome{OK: true, NewBalance: f.balances[userKey]}, nil
}

func (f *fakeStore) InsertTransaction(ctx context.Context, tx domain.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions[tx.Reference] = tx
	return nil
}

func (f *fakeStore) GetTransaction(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[reference]
	if !ok {
		return domain.PaymentTransaction{}, assertUnknownReference{}
	}
	return tx, nil
}

func (f *fakeStore) UpdateTransactionStatus(ctx context.Context, reference string, expected, target domain.TransactionStatus, gatewayPayload *string, completedAt *time.Time) (domain.PaymentTransaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := f.transactions[reference]
	if tx.Status != expected {
		return tx, false, nil
	}
	tx.Status = target
	tx.GatewayPayload = gatewayPayload
	tx.CompletedAt = completedAt
	f.transactions[reference] = tx
	return tx, true, nil
}

func (f *fakeStore) MarkCreditApplied(ctx context.Context, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := f.transactions[reference]
	tx.CreditApplied = true
	f.transactions[reference] = tx
	return nil
}

func (f *fakeStore) AppendConsumption(ctx context.Context, entry domain.ConsumptionEntry) error { return nil }
func (f *fakeStore) ListConsumption(ctx context.Context, userKey string, limit int) ([]domain.ConsumptionEntry, error) {
	return nil, nil
}

func (f *fakeStore) ListExpiredPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PaymentTransaction
	for _, tx := range f.transactions {
		if tx.Status == domain.StatusPending && tx.CreatedAt.Before(olderThan) {
			out = append(out, tx)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type assertUnknownReference struct{}

func (assertUnknownReference) Error() string { return "unknown reference" }

var _ domain.Store = (*fakeStore)(nil)

// fakeGateway returns a fixed VerifyResult regardless of how many times
// Verify is called, simulating a gateway that has already settled the
// transaction by the time concurrent verifiers race to claim it.
type fakeGateway struct {
	status domain.VerifyStatus
}

func (g *fakeGateway) PaymentURL(reference string, amount decimal.Decimal, currency, userKey, returnURL string) (string, error) {
	return "https://pay.example.com/" + reference, nil
}
func (g *fakeGateway) InlineConfig(reference string, amount decimal.Decimal, userKey, returnURL string) (domain.InlineConfig, error) {
	return domain.InlineConfig{Reference: reference}, nil
}
func (g *fakeGateway) Verify(ctx context.Context, reference string, amount decimal.Decimal) (domain.VerifyResult, error) {
	return domain.VerifyResult{Status: g.status, GatewayPayload: "{}"}, nil
}

var _ domain.Gateway = (*fakeGateway)(nil)

func testPolicy() *pricing.Policy {
	return pricing.New(config.PricingConfig{
		Currency:            "KZT",
		TokensPerUnitMoney:  2,
		MinPurchaseMoney:    "50.00",
		MaxPurchaseMoney:    "500000.00",
		FreeGrantTokens:     100,
		CostAnalysis:        10,
		CostTransform:       5,
		CostPremiumInsights: 25,
	})
}

func newTestOrchestrator(store *fakeStore, gw *fakeGateway) *Orchestrator {
	led := ledger.New(store, cache.NewMemory(time.Minute), 100, zap.NewNop())
	return New(store, gw, testPolicy(), led, events.Nop{}, "https://app.example.com/return", zap.NewNop())
}

func TestPurchase_CreatesPendingTransaction(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeGateway{status: domain.VerifyStatusSuccessful})

	resp, err := o.Purchase(context.Background(), PurchaseRequest{UserKey: "user-1", TokenQty: 200, Currency: "KZT"})
	require.NoError(t, err)
	assert.Equal(t, int64(200), resp.TokenQty)
	assert.NotEmpty(t, resp.Reference)
	assert.NotEmpty(t, resp.PaymentURL)

	tx, err := store.GetTransaction(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status)
}

func TestVerify_CreditsExactlyOnceUnderConcurrentCalls(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeGateway{status: domain.VerifyStatusSuccessful})

	resp, err := o.Purchase(context.Background(), PurchaseRequest{UserKey: "user-1", TokenQty: 200, Currency: "KZT"})
	require.NoError(t, err)

	const concurrency = 10
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Verify(context.Background(), resp.Reference)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	store.mu.Lock()
	creditCount := store.credits
	balance := store.balances["user-1"]
	store.mu.Unlock()
	assert.Equal(t, 1, creditCount, "exactly one concurrent verifier should apply the credit")
	assert.Equal(t, int64(100+200), balance, "free grant (100) plus exactly one credit of 200 tokens")
}

func TestVerify_PendingGatewayStatusShortCircuits(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeGateway{status: domain.VerifyStatusPending})

	resp, err := o.Purchase(context.Background(), PurchaseRequest{UserKey: "user-1", TokenQty: 200, Currency: "KZT"})
	require.NoError(t, err)

	vr, err := o.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, vr.Status)
	assert.False(t, vr.Credited)

	tx, err := store.GetTransaction(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status, "a gateway-pending result must never advance the transaction out of pending")
}

func TestVerify_FailedGatewayStatusNeverCredits(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeGateway{status: domain.VerifyStatusFailed})

	resp, err := o.Purchase(context.Background(), PurchaseRequest{UserKey: "user-1", TokenQty: 200, Currency: "KZT"})
	require.NoError(t, err)

	vr, err := o.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, vr.Status)
	assert.False(t, vr.Credited)

	store.mu.Lock()
	balance := store.balances["user-1"]
	store.mu.Unlock()
	assert.Equal(t, int64(100), balance, "failed payment must not add to the free-grant balance")
}

func TestVerify_AlreadyTerminalIsIdempotent(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeGateway{status: domain.VerifyStatusSuccessful})

	resp, err := o.Purchase(context.Background(), PurchaseRequest{UserKey: "user-1", TokenQty: 200, Currency: "KZT"})
	require.NoError(t, err)

	_, err = o.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)

	vr2, err := o.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.True(t, vr2.Credited)

	store.mu.Lock()
	balance := store.balances["user-1"]
	store.mu.Unlock()
	assert.Equal(t, int64(100+200), balance, "re-verifying an already-successful transaction must not credit a second time")
}

func TestSweepExpiredPending_CancelsOnlyOldPendingTransactions(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeGateway{status: domain.VerifyStatusSuccessful})

	old, err := o.Purchase(context.Background(), PurchaseRequest{UserKey: "user-1", TokenQty: 200, Currency: "KZT"})
	require.NoError(t, err)
	store.mu.Lock()
	oldTx := store.transactions[old.Reference]
	oldTx.CreatedAt = time.Now().UTC().Add(-time.Hour)
	store.transactions[old.Reference] = oldTx
	store.mu.Unlock()

	fresh, err := o.Purchase(context.Background(), PurchaseRequest{UserKey: "user-1", TokenQty: 200, Currency: "KZT"})
	require.NoError(t, err)

	result, err := o.SweepExpiredPending(context.Background(), 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Expired)

	oldFinal, err := store.GetTransaction(context.Background(), old.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, oldFinal.Status)

	freshFinal, err := store.GetTransaction(context.Background(), fresh.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, freshFinal.Status, "a transaction younger than the TTL must never be swept")
}

func TestSweepExpiredPending_NeverTouchesTerminalTransactions(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &fakeGateway{status: domain.VerifyStatusSuccessful})

	resp, err := o.Purchase(context.Background(), PurchaseRequest{UserKey: "user-1", TokenQty: 200, Currency: "KZT"})
	require.NoError(t, err)

	_, err = o.Verify(context.Background(), resp.Reference)
	require.NoError(t, err)

	store.mu.Lock()
	tx := store.transactions[resp.Reference]
	tx.CreatedAt = time.Now().UTC().Add(-time.Hour)
	store.transactions[resp.Reference] = tx
	store.mu.Unlock()

	result, err := o.SweepExpiredPending(context.Background(), 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned, "a successful transaction must never be a sweep candidate")

	final, err := store.GetTransaction(context.Background(), resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccessful, final.Status)
}

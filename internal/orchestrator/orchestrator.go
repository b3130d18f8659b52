// Package orchestrator implements PaymentOrchestrator (spec.md §4.5): the
// purchase/verify flow that drives PaymentTransaction through its state
// machine and applies the exactly-once credit to the ledger. The
// Request/Response/UseCase shape (Validate then Execute, structured
// domain-error returns) is grounded on the teacher's
// internal/payments/operations/payment/initiate_payment.go.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/domain"
	"github.com/zenalign/tokencore/internal/events"
	"github.com/zenalign/tokencore/internal/ledger"
	"github.com/zenalign/tokencore/internal/pricing"
	"github.com/zenalign/tokencore/pkg/crypto"
	"github.com/zenalign/tokencore/pkg/errors"
)

// referenceRandomBytes yields >= 48 bits of entropy once hex-encoded
// (6 bytes = 48 bits), per spec.md §4.5.
const referenceRandomBytes = 6

// Orchestrator is the concrete PaymentOrchestrator.
type Orchestrator struct {
	store     domain.Store
	gateway   domain.Gateway
	pricing   *pricing.Policy
	ledger    *ledger.Ledger
	publisher events.Publisher
	logger    *zap.Logger
	returnURL string
}

// New constructs an Orchestrator.
func New(store domain.Store, gateway domain.Gateway, policy *pricing.Policy, led *ledger.Ledger, publisher events.Publisher, returnURL string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		gateway:   gateway,
		pricing:   policy,
		ledger:    led,
		publisher: publisher,
		returnURL: returnURL,
		logger:    logger,
	}
}

// PurchaseRequest is the input to Purchase.
type PurchaseRequest struct {
	UserKey  string
	TokenQty int64
	Currency string
}

// Validate checks PurchaseRequest against the pricing policy's bounds and
// derives the Money amount to charge. Returns the derived amount alongside
// any error so Purchase never has to recompute it.
func (r PurchaseRequest) Validate(policy *pricing.Policy) (decimal.Decimal, error) {
	if r.UserKey == "" {
		return decimal.Zero, errors.ErrValidation.WithDetails("field", "UserKey")
	}
	if r.Currency != policy.Currency() {
		return decimal.Zero, errors.ErrValidation.
			WithDetails("field", "currency").
			WithDetails("reason", "does not match configured currency").
			WithDetails("expected", policy.Currency())
	}
	amount, err := policy.AmountFor(r.TokenQty)
	if err != nil {
		return decimal.Zero, err
	}
	if err := policy.ValidatePurchaseAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// PurchaseResponse is the output of Purchase.
type PurchaseResponse struct {
	Reference    string
	PaymentURL   string
	TokenQty     int64
	Amount       decimal.Decimal
	Currency     string
	Status       domain.TransactionStatus
	ExpiresAt    time.Time
	InlineConfig domain.InlineConfig
}

// Purchase implements the purchase operation (spec.md §4.5): ensures the
// user's balance row exists (applying the free grant on first lookup),
// generates a reference, persists a pending transaction, and asks the
// gateway for a checkout URL. No tokens are credited here — crediting only
// ever happens from Verify, on a confirmed successful transition.
func (o *Orchestrator) Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResponse, error) {
	amount, err := req.Validate(o.pricing)
	if err != nil {
		return PurchaseResponse{}, err
	}

	if _, err := o.ledger.BalanceOf(ctx, req.UserKey); err != nil {
		return PurchaseResponse{}, err
	}

	reference, err := o.generateReference(req.UserKey)
	if err != nil {
		return PurchaseResponse{}, errors.ErrStorageError.Wrap(err)
	}

	now := time.Now().UTC()
	tx := domain.PaymentTransaction{
		Reference: reference,
		UserKey:   req.UserKey,
		Amount:    amount,
		Currency:  o.pricing.Currency(),
		TokenQty:  req.TokenQty,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.InsertTransaction(ctx, tx); err != nil {
		o.logger.Error("orchestrator: insert transaction failed", zap.String("reference", reference), zap.Error(err))
		return PurchaseResponse{}, errors.ErrStorageError.Wrap(err)
	}

	paymentURL, err := o.gateway.PaymentURL(reference, amount, o.pricing.Currency(), req.UserKey, o.returnURL)
	if err != nil {
		return PurchaseResponse{}, errors.ErrGatewayUnavailable.Wrap(err)
	}
	inline, err := o.gateway.InlineConfig(reference, amount, req.UserKey, o.returnURL)
	if err != nil {
		return PurchaseResponse{}, errors.ErrGatewayUnavailable.Wrap(err)
	}

	o.publisher.Publish(ctx, events.Event{
		Kind:      events.KindPurchaseInitiated,
		Reference: reference,
		UserKey:   req.UserKey,
		TokenQty:  req.TokenQty,
		Timestamp: now,
	})

	o.logger.Info("orchestrator: purchase initiated",
		zap.String("reference", reference),
		zap.String("user_key", req.UserKey),
		zap.Int64("token_qty", req.TokenQty),
	)

	return PurchaseResponse{
		Reference:    reference,
		PaymentURL:   paymentURL,
		TokenQty:     req.TokenQty,
		Amount:       amount,
		Currency:     o.pricing.Currency(),
		Status:       domain.StatusPending,
		ExpiresAt:    now.Add(o.pricing.TransactionTTL()),
		InlineConfig: inline,
	}, nil
}

// VerifyResponse is the output of Verify.
type VerifyResponse struct {
	Reference string
	Status    domain.TransactionStatus
	TokenQty  int64
	Credited  bool
}

// Verify implements the verify operation (spec.md §4.5): it queries the
// gateway for the transaction's authoritative status and applies the
// pending->successful/failed transition exactly once, crediting
// the ledger exactly once on a successful transition. Concurrent callers
// verifying the same reference race on the Store's conditional UPDATE;
// only the one that flips status away from pending ever credits.
func (o *Orchestrator) Verify(ctx context.Context, reference string) (VerifyResponse, error) {
	tx, err := o.store.GetTransaction(ctx, reference)
	if err != nil {
		return VerifyResponse{}, err
	}

	// Already terminal: nothing to do, return current state. This makes
	// repeated verify calls (e.g. a user refreshing a status page) safe
	// without re-querying the gateway or re-crediting.
	if tx.Status.IsTerminal() {
		return VerifyResponse{
			Reference: tx.Reference,
			Status:    tx.Status,
			TokenQty:  tx.TokenQty,
			Credited:  tx.CreditApplied,
		}, nil
	}

	result, err := o.gateway.Verify(ctx, reference, tx.Amount)
	if err != nil {
		return VerifyResponse{}, err
	}

	var target domain.TransactionStatus
	switch result.Status {
	case domain.VerifyStatusSuccessful:
		target = domain.StatusSuccessful
	case domain.VerifyStatusPending:
		return VerifyResponse{Reference: tx.Reference, Status: domain.StatusPending, TokenQty: tx.TokenQty}, nil
	default:
		target = domain.StatusFailed
	}

	completedAt := time.Now().UTC()
	updated, applied, err := o.store.UpdateTransactionStatus(ctx, reference, domain.StatusPending, target, &result.GatewayPayload, &completedAt)
	if err != nil {
		return VerifyResponse{}, err
	}

	if !applied {
		// Lost the race to another verifier, or the transaction moved on
		// since we read it; report the now-current state rather than
		// retrying, since whoever won already owns crediting.
		return VerifyResponse{
			Reference: updated.Reference,
			Status:    updated.Status,
			TokenQty:  updated.TokenQty,
			Credited:  updated.CreditApplied,
		}, nil
	}

	credited := false
	if target == domain.StatusSuccessful {
		if _, err := o.ledger.Credit(ctx, tx.UserKey, tx.TokenQty); err != nil {
			o.logger.Error("orchestrator: credit after verified payment failed", zap.String("reference", reference), zap.Error(err))
			return VerifyResponse{}, errors.ErrStorageError.Wrap(err).WithDetails("reference", reference)
		}
		if err := o.store.MarkCreditApplied(ctx, reference); err != nil {
			o.logger.Error("orchestrator: mark credit applied failed", zap.String("reference", reference), zap.Error(err))
		}
		credited = true
		o.publisher.Publish(ctx, events.Event{
			Kind:      events.KindPaymentSuccessful,
			Reference: reference,
			UserKey:   tx.UserKey,
			TokenQty:  tx.TokenQty,
			Timestamp: completedAt,
		})
	} else {
		o.publisher.Publish(ctx, events.Event{
			Kind:      events.KindPaymentFailed,
			Reference: reference,
			UserKey:   tx.UserKey,
			Timestamp: completedAt,
		})
	}

	o.logger.Info("orchestrator: verify completed",
		zap.String("reference", reference),
		zap.String("status", string(target)),
		zap.Bool("credited", credited),
	)

	return VerifyResponse{
		Reference: reference,
		Status:    target,
		TokenQty:  tx.TokenQty,
		Credited:  credited,
	}, nil
}

// Transaction implements the transaction-lookup operation used by the HTTP
// status endpoint.
func (o *Orchestrator) Transaction(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	return o.store.GetTransaction(ctx, reference)
}

// SweepResult summarizes one SweepExpiredPending pass.
type SweepResult struct {
	Scanned int
	Expired int
}

// SweepExpiredPending implements the optional maintenance routine named in
// spec.md §4.5 ("Transactions older than the configured TTL that remain
// pending MAY be swept to cancelled"): it loads pending transactions older
// than ttl and moves each to cancelled via the same conditional UPDATE
// Verify uses, so a transaction that completes concurrently with the sweep
// (pending->successful/failed) is simply skipped (applied=false) rather
// than clobbered. Never credits; cancelled transactions carry no tokens.
func (o *Orchestrator) SweepExpiredPending(ctx context.Context, ttl time.Duration, batchSize int) (SweepResult, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	candidates, err := o.store.ListExpiredPending(ctx, cutoff, batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(candidates)}
	for _, tx := range candidates {
		completedAt := time.Now().UTC()
		_, applied, err := o.store.UpdateTransactionStatus(ctx, tx.Reference, domain.StatusPending, domain.StatusCancelled, nil, &completedAt)
		if err != nil {
			o.logger.Error("orchestrator: sweep transition failed", zap.String("reference", tx.Reference), zap.Error(err))
			continue
		}
		if !applied {
			continue
		}
		result.Expired++
		o.publisher.Publish(ctx, events.Event{
			Kind:      events.KindPaymentFailed,
			Reference: tx.Reference,
			UserKey:   tx.UserKey,
			Timestamp: completedAt,
		})
	}

	if result.Expired > 0 {
		o.logger.Info("orchestrator: swept expired pending transactions",
			zap.Int("scanned", result.Scanned),
			zap.Int("expired", result.Expired),
		)
	}
	return result, nil
}

// generateReference builds a reference of the form PUR-<unix-nano>-<random
// hex>, unique with overwhelming probability and sortable by creation time.
func (o *Orchestrator) generateReference(userKey string) (string, error) {
	suffix, err := crypto.GenerateRandomString(referenceRandomBytes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PUR-%d-%s", time.Now().UTC().UnixNano(), suffix), nil
}

// Package consumption implements ConsumptionGuard (spec.md §4.6): the
// gate that converts a service request into a token debit plus the
// underlying unit of work, refunding nothing and performing no work when
// the debit is refused.
package consumption

import (
	"context"

	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/domain"
	"github.com/zenalign/tokencore/internal/events"
	"github.com/zenalign/tokencore/internal/ledger"
	"github.com/zenalign/tokencore/internal/pricing"
	"github.com/zenalign/tokencore/pkg/errors"
)

// Guard is the concrete ConsumptionGuard.
type Guard struct {
	ledger    *ledger.Ledger
	pricing   *pricing.Policy
	engine    domain.AnalysisEngine
	publisher events.Publisher
	logger    *zap.Logger
}

// New constructs a Guard.
func New(led *ledger.Ledger, policy *pricing.Policy, engine domain.AnalysisEngine, publisher events.Publisher, logger *zap.Logger) *Guard {
	return &Guard{ledger: led, pricing: policy, engine: engine, publisher: publisher, logger: logger}
}

// Result is the output of Consume.
type Result struct {
	TokenQty       int64
	NewBalance     int64
	AnalysisResult domain.AnalysisResult
}

// Consume implements the consume operation (spec.md §4.6): look up the
// service_kind's token cost, attempt an atomic debit, and only perform the
// underlying work when the debit succeeds. The debit and the work are
// never reordered — a successful debit with a failing unit of work still
// leaves the tokens spent, matching the spec's explicit non-goal of a
// refund-on-failure path.
func (g *Guard) Consume(ctx context.Context, userKey string, kind domain.ServiceKind, workItemID string) (Result, error) {
	if !kind.Valid() {
		return Result{}, errors.ErrValidation.WithDetails("field", "service_kind").WithDetails("value", string(kind))
	}

	cost, err := g.pricing.CostOf(kind)
	if err != nil {
		return Result{}, err
	}

	outcome, err := g.ledger.TryDebit(ctx, userKey, cost)
	if err != nil {
		return Result{}, err
	}
	if !outcome.OK {
		return Result{}, errors.ErrInsufficientTokens.
			WithDetails("required_tokens", cost).
			WithDetails("current_balance", outcome.CurrentBalance)
	}

	analysis, err := g.engine.Run(ctx, workItemID, userKey)
	if err != nil {
		g.logger.Error("consumption: unit of work failed after debit",
			zap.String("user_key", userKey),
			zap.String("service_kind", string(kind)),
			zap.Error(err),
		)
		return Result{}, err
	}

	var workItemIDPtr *string
	if workItemID != "" {
		workItemIDPtr = &workItemID
	}
	entry := domain.ConsumptionEntry{
		UserKey:     userKey,
		TokenQty:    cost,
		ServiceKind: kind,
		WorkItemID:  workItemIDPtr,
	}
	if err := g.ledger.RecordConsumption(ctx, entry); err != nil {
		g.logger.Error("consumption: failed to record consumption entry", zap.String("user_key", userKey), zap.Error(err))
	}

	g.publisher.Publish(ctx, events.Event{
		Kind:     events.KindTokensConsumed,
		UserKey:  userKey,
		TokenQty: cost,
	})

	g.logger.Info("consumption: debit applied",
		zap.String("user_key", userKey),
		zap.String("service_kind", string(kind)),
		zap.Int64("token_qty", cost),
		zap.Int64("new_balance", outcome.NewBalance),
	)

	return Result{TokenQty: cost, NewBalance: outcome.NewBalance, AnalysisResult: analysis}, nil
}

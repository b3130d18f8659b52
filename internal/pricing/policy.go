// Package pricing implements PricingPolicy (spec.md §4.3): pure,
// allocation-light functions converting between Money and token quantities
// and validating purchase bounds. Nothing here performs I/O.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zenalign/tokencore/internal/config"
	"github.com/zenalign/tokencore/internal/domain"
	"github.com/zenalign/tokencore/pkg/errors"
)

// Policy is constructed once from config.PricingConfig and is safe for
// concurrent use — every method is a pure function of its receiver and
// arguments.
type Policy struct {
	currency           string
	tokensPerUnitMoney int64
	minPurchaseMoney   decimal.Decimal
	maxPurchaseMoney   decimal.Decimal
	freeGrantTokens    int64
	transactionTTL     time.Duration
	serviceCosts       map[domain.ServiceKind]int64
}

// New builds a Policy from the loaded PricingConfig. Malformed decimal
// bounds in configuration are a startup-time defect, so New panics rather
// than threading a config error through every call site — mirrors the
// teacher's fail-fast config.New() usage in cmd/api/main.go.
func New(cfg config.PricingConfig) *Policy {
	min, err := decimal.NewFromString(cfg.MinPurchaseMoney)
	if err != nil {
		panic("pricing: invalid PRICING_MINPURCHASEMONEY: " + err.Error())
	}
	max, err := decimal.NewFromString(cfg.MaxPurchaseMoney)
	if err != nil {
		panic("pricing: invalid PRICING_MAXPURCHASEMONEY: " + err.Error())
	}

	return &Policy{
		currency:           cfg.Currency,
		tokensPerUnitMoney: cfg.TokensPerUnitMoney,
		minPurchaseMoney:   min,
		maxPurchaseMoney:   max,
		freeGrantTokens:    cfg.FreeGrantTokens,
		transactionTTL:     cfg.TransactionTTL,
		serviceCosts: map[domain.ServiceKind]int64{
			domain.ServiceAnalysis:        cfg.CostAnalysis,
			domain.ServiceTransform:       cfg.CostTransform,
			domain.ServicePremiumInsights: cfg.CostPremiumInsights,
		},
	}
}

// Currency returns the single supported currency code.
func (p *Policy) Currency() string { return p.currency }

// FreeGrantTokens returns the number of tokens granted on first use.
func (p *Policy) FreeGrantTokens() int64 { return p.freeGrantTokens }

// TokensPerUnitMoney exposes the linear conversion rate, for rendering the
// pricing catalogue.
func (p *Policy) TokensPerUnitMoney() int64 { return p.tokensPerUnitMoney }

// Bounds exposes the configured purchase bounds, for rendering the pricing
// catalogue.
func (p *Policy) Bounds() (min, max decimal.Decimal) {
	return p.minPurchaseMoney, p.maxPurchaseMoney
}

// TransactionTTL returns the age at which a still-pending transaction
// becomes eligible for the optional sweep (spec.md §4.5).
func (p *Policy) TransactionTTL() time.Duration { return p.transactionTTL }

// ServiceCosts returns a copy of the service_kind -> token cost mapping.
func (p *Policy) ServiceCosts() map[domain.ServiceKind]int64 {
	out := make(map[domain.ServiceKind]int64, len(p.serviceCosts))
	for k, v := range p.serviceCosts {
		out[k] = v
	}
	return out
}

// TokensFor computes floor(amount * tokens_per_unit_money).
func (p *Policy) TokensFor(amount decimal.Decimal) int64 {
	product := amount.Mul(decimal.NewFromInt(p.tokensPerUnitMoney))
	return product.Floor().IntPart()
}

// AmountFor is the exact inverse of TokensFor at two-decimal precision.
// This implementation resolves the Open Question in spec.md §9 in favor
// of strict integer pricing (see DESIGN.md): a tokenQty that does not
// divide cleanly by TokensPerUnitMoney is rejected rather than rounded,
// so tokens_for(amount_for(q)) = q holds for every q this function
// accepts.
func (p *Policy) AmountFor(tokenQty int64) (decimal.Decimal, error) {
	if tokenQty <= 0 {
		return decimal.Zero, errors.ErrValidation.
			WithDetails("field", "token_qty").
			WithDetails("reason", "must be positive")
	}
	if tokenQty%p.tokensPerUnitMoney != 0 {
		return decimal.Zero, errors.ErrValidation.
			WithDetails("field", "token_qty").
			WithDetails("reason", "does not divide evenly by tokens_per_unit_money").
			WithDetails("tokens_per_unit_money", p.tokensPerUnitMoney)
	}
	amount := decimal.NewFromInt(tokenQty).Div(decimal.NewFromInt(p.tokensPerUnitMoney))
	return amount.Round(2), nil
}

// CostOf returns the token cost of kind, or an error if kind is not a
// recognized service_kind.
func (p *Policy) CostOf(kind domain.ServiceKind) (int64, error) {
	cost, ok := p.serviceCosts[kind]
	if !ok {
		return 0, errors.ErrValidation.
			WithDetails("field", "service_kind").
			WithDetails("reason", "unknown service kind").
			WithDetails("value", string(kind))
	}
	return cost, nil
}

// ValidatePurchaseAmount rejects amounts outside
// [min_purchase_money, max_purchase_money].
func (p *Policy) ValidatePurchaseAmount(amount decimal.Decimal) error {
	if amount.LessThan(p.minPurchaseMoney) {
		return errors.ErrValidation.
			WithDetails("field", "amount").
			WithDetails("reason", "below minimum purchase amount").
			WithDetails("minimum", p.minPurchaseMoney.String())
	}
	if amount.GreaterThan(p.maxPurchaseMoney) {
		return errors.ErrValidation.
			WithDetails("field", "amount").
			WithDetails("reason", "exceeds maximum purchase amount").
			WithDetails("maximum", p.maxPurchaseMoney.String())
	}
	return nil
}

package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenalign/tokencore/internal/config"
	"github.com/zenalign/tokencore/internal/domain"
)

func testPolicy() *Policy {
	return New(config.PricingConfig{
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

func TestTokensFor(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name   string
		amount string
		want   int64
	}{
		{"exact", "500.00", 1000},
		{"floors fractional product", "500.49", 1000},
		{"zero", "0.00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.TokensFor(amount))
		})
	}
}

func TestAmountFor_RoundTrip(t *testing.T) {
	p := testPolicy()

	for _, qty := range []int64{2, 10, 1000, 999998} {
		amount, err := p.AmountFor(qty)
		require.NoError(t, err)
		assert.Equal(t, qty, p.TokensFor(amount), "tokens_for(amount_for(q)) must equal q")
	}
}

func TestAmountFor_RejectsNonDivisible(t *testing.T) {
	p := testPolicy()

	_, err := p.AmountFor(3)
	assert.Error(t, err)
}

func TestAmountFor_RejectsNonPositive(t *testing.T) {
	p := testPolicy()

	_, err := p.AmountFor(0)
	assert.Error(t, err)

	_, err = p.AmountFor(-4)
	assert.Error(t, err)
}

func TestValidatePurchaseAmount_Boundaries(t *testing.T) {
	p := testPolicy()

	atMin, _ := decimal.NewFromString("50.00")
	assert.NoError(t, p.ValidatePurchaseAmount(atMin))

	belowMin, _ := decimal.NewFromString("49.99")
	assert.Error(t, p.ValidatePurchaseAmount(belowMin))

	atMax, _ := decimal.NewFromString("500000.00")
	assert.NoError(t, p.ValidatePurchaseAmount(atMax))

	aboveMax, _ := decimal.NewFromString("500000.01")
	assert.Error(t, p.ValidatePurchaseAmount(aboveMax))
}

func TestCostOf(t *testing.T) {
	p := testPolicy()

	cost, err := p.CostOf(domain.ServiceAnalysis)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)

	_, err = p.CostOf(domain.ServiceKind("unknown"))
	assert.Error(t, err)
}

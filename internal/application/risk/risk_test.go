package risk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polytrader/internal/application/risk"
	"github.com/alejandrodnm/polytrader/internal/domain"
)

func intent(size float64, md domain.Metadata) *domain.OrderIntent {
	return &domain.OrderIntent{MarketID: "m1", Action: domain.ActionYes, Size: size, Metadata: md}
}

func TestValidate_LiquidityCap(t *testing.T) {
	e := risk.New(risk.DefaultConfig())
	p := domain.Portfolio{Balance: 10_000}

	rejected := intent(150, nil)
	r := e.Validate(rejected, p)
	assert.False(t, r.Approved)
	assert.InDelta(t, 100, r.Liquidity.MaxAllocation, 1e-9)
	assert.Equal(t, []string{domain.FactorLiquidity}, r.FailedFactors)
	require.NotNil(t, rejected.Risk)
	assert.Contains(t, rejected.Metadata, "risk")

	r = e.Validate(intent(80, nil), p)
	assert.True(t, r.Approved)
	assert.Empty(t, r.FailedFactors)
	assert.Equal(t, risk.MethodEmpty, r.VaR.Method)
}

func TestValidate_VolatilityAdjustment(t *testing.T) {
	e := risk.New(risk.DefaultConfig())
	r := e.Validate(intent(80, domain.Metadata{"volatility": 0.4}), domain.Portfolio{Balance: 10_000})
	assert.InDelta(t, 0.5, r.Liquidity.VolatilityAdjustment, 1e-9)
	assert.InDelta(t, 50, r.Liquidity.MaxAllocation, 1e-9)
	assert.False(t, r.Liquidity.Approved)

	r = e.Validate(intent(80, domain.Metadata{"volatility": 10.0}), domain.Portfolio{Balance: 10_000})
	assert.InDelta(t, 0.25, r.Liquidity.VolatilityAdjustment, 1e-9)
}

func TestValidate_VaRRejectsLargeLoss(t *testing.T) {
	returns := make([]float64, 30)
	for i := range returns {
		returns[i] = -0.1
	}
	cfg := risk.DefaultConfig()
	cfg.MaxSingleOrderRatio = 1
	e := risk.New(cfg)

	r := e.Validate(intent(6000, nil), domain.Portfolio{Balance: 10_000, Returns: returns})
	assert.False(t, r.VaR.Approved)
	assert.InDelta(t, -0.1, r.VaR.VaR, 1e-9)
	assert.InDelta(t, 600, r.VaR.PotentialLoss, 1e-6)
	assert.InDelta(t, 500, r.VaR.AllowedLoss, 1e-9)
	assert.Equal(t, risk.MethodHarrellDavis, r.VaR.Method)
	assert.Equal(t, []string{domain.FactorVaR}, r.FailedFactors)

	r = e.Validate(intent(4000, nil), domain.Portfolio{Balance: 10_000, Returns: returns})
	assert.True(t, r.VaR.Approved)
}

func TestValidate_VaRConfidenceInterval(t *testing.T) {
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = float64(i-50) / 1000
	}
	e := risk.New(risk.DefaultConfig())
	r := e.Validate(intent(10, nil), domain.Portfolio{Balance: 10_000, Returns: returns})
	assert.LessOrEqual(t, r.VaR.CILower, r.VaR.VaR)
	assert.LessOrEqual(t, r.VaR.VaR, r.VaR.CIUpper)
	assert.Less(t, r.VaR.VaR, 0.0)
}

func TestValidate_VolatilityLoss(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxSingleOrderRatio = 1
	e := risk.New(cfg)

	r := e.Validate(intent(300, domain.Metadata{"volatility": 0.3}), domain.Portfolio{Balance: 1000})
	assert.False(t, r.VaR.Approved)
	require.NotNil(t, r.VaR.VolatilityLoss)
	assert.InDelta(t, 60, *r.VaR.VolatilityLoss, 1e-9)

	r = e.Validate(intent(200, domain.Metadata{"volatility": 0.3}), domain.Portfolio{Balance: 1000})
	assert.True(t, r.VaR.Approved)
}

func TestValidate_ZeroBalance(t *testing.T) {
	e := risk.New(risk.DefaultConfig())
	r := e.Validate(intent(0, nil), domain.Portfolio{})
	assert.False(t, r.Approved)
	assert.ElementsMatch(t, []string{domain.FactorVaR, domain.FactorLiquidity}, r.FailedFactors)
}

package domain

// Risk factor names.
const (
	FactorVaR       = "var"
	FactorLiquidity = "liquidity"
)

// RiskReport es el audit trail del risk engine. Se adjunta al intent tanto si
// se aprueba como si no.
type RiskReport struct {
	Approved      bool                 `json:"approved"`
	FailedFactors []string             `json:"failed_factors,omitempty"`
	VaR           VaRDiagnostics       `json:"var"`
	Liquidity     LiquidityDiagnostics `json:"liquidity"`
}

// VaRDiagnostics describes the value-at-risk factor.
type VaRDiagnostics struct {
	Approved        bool     `json:"approved"`
	Method          string   `json:"method"` // harrell_davis | percentile | empty
	Samples         int      `json:"samples"`
	OutliersRemoved int      `json:"outliers_removed"`
	Winsorized      bool     `json:"winsorized"`
	VaR             float64  `json:"var"`
	CILower         float64  `json:"ci_lower"`
	CIUpper         float64  `json:"ci_upper"`
	PotentialLoss   float64  `json:"potential_loss"`
	AllowedLoss     float64  `json:"allowed_loss"`
	Volatility      *float64 `json:"volatility,omitempty"`
	VolatilityLoss  *float64 `json:"volatility_loss,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

// LiquidityDiagnostics describes the allocation-cap factor.
type LiquidityDiagnostics struct {
	Approved             bool    `json:"approved"`
	VolatilityAdjustment float64 `json:"volatility_adjustment"`
	MaxAllocation        float64 `json:"max_allocation"`
	OrderSize            float64 `json:"order_size"`
	Reason               string  `json:"reason,omitempty"`
}

// Portfolio is the caller-owned state the risk engine validates against.
type Portfolio struct {
	Balance float64
	Returns []float64 // realized returns, oldest first
}

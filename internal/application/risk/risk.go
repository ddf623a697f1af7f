package risk

import (
	"log/slog"
	"math"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// Quantile estimation methods reported in the VaR diagnostics.
const (
	MethodHarrellDavis = "harrell_davis"
	MethodPercentile   = "percentile"
	MethodEmpty        = "empty"
)

const (
	outlierMADs  = 3.5
	trimFraction = 0.05
	minSample    = 10
	minVol       = 1e-4
)

// Config holds the risk limits.
type Config struct {
	MaxVaRRatio           float64 // pérdida VaR permitida / balance
	MaxSingleOrderRatio   float64 // tamaño máximo de orden / balance
	VolatilityRiskCeiling float64
	Lookback              int
	VaRLevel              float64
	CILower               float64
	CIUpper               float64
}

// DefaultConfig devuelve los límites por defecto.
func DefaultConfig() Config {
	return Config{
		MaxVaRRatio:           0.05,
		MaxSingleOrderRatio:   0.01,
		VolatilityRiskCeiling: 0.2,
		Lookback:              200,
		VaRLevel:              0.05,
		CILower:               0.025,
		CIUpper:               0.075,
	}
}

// Engine valida órdenes contra el estado del portfolio. Sin estado propio.
type Engine struct {
	cfg Config
}

// New crea el risk engine. Los valores <= 0 toman el default.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxVaRRatio <= 0 {
		cfg.MaxVaRRatio = def.MaxVaRRatio
	}
	if cfg.MaxSingleOrderRatio <= 0 {
		cfg.MaxSingleOrderRatio = def.MaxSingleOrderRatio
	}
	if cfg.VolatilityRiskCeiling <= 0 {
		cfg.VolatilityRiskCeiling = def.VolatilityRiskCeiling
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.VaRLevel <= 0 || cfg.VaRLevel >= 1 {
		cfg.VaRLevel = def.VaRLevel
	}
	if cfg.CILower <= 0 || cfg.CIUpper <= cfg.CILower || cfg.CIUpper >= 1 {
		cfg.CILower, cfg.CIUpper = def.CILower, def.CIUpper
	}
	return &Engine{cfg: cfg}
}

// Validate evalúa los factores VaR y liquidez, adjunta el reporte al intent
// (aprobado o no) y lo devuelve.
func (e *Engine) Validate(intent *domain.OrderIntent, p domain.Portfolio) domain.RiskReport {
	var vol *float64
	if v, ok := intent.Volatility(); ok {
		vol = &v
	}
	report := domain.RiskReport{
		VaR:       e.checkVaR(intent.Size, p, vol),
		Liquidity: e.checkLiquidity(intent.Size, p.Balance, vol),
	}
	if !report.VaR.Approved {
		report.FailedFactors = append(report.FailedFactors, domain.FactorVaR)
	}
	if !report.Liquidity.Approved {
		report.FailedFactors = append(report.FailedFactors, domain.FactorLiquidity)
	}
	report.Approved = len(report.FailedFactors) == 0

	intent.Risk = &report
	if intent.Metadata == nil {
		intent.Metadata = domain.Metadata{}
	}
	intent.Metadata["risk"] = report
	if !report.Approved {
		slog.Debug("risk: rejected", "market", intent.MarketID, "size", intent.Size, "failed", report.FailedFactors)
	}
	return report
}

func (e *Engine) checkVaR(size float64, p domain.Portfolio, vol *float64) domain.VaRDiagnostics {
	sample, outliers, trimmed := clean(p.Returns, e.cfg.Lookback)
	d := domain.VaRDiagnostics{
		Samples:         len(sample),
		OutliersRemoved: outliers,
		Winsorized:      trimmed,
		AllowedLoss:     p.Balance * e.cfg.MaxVaRRatio,
		Method:          MethodEmpty,
	}
	if len(sample) > 0 {
		d.VaR, d.Method = quantile(sample, e.cfg.VaRLevel)
		d.CILower, _ = quantile(sample, e.cfg.CILower)
		d.CIUpper, _ = quantile(sample, e.cfg.CIUpper)
	}
	d.PotentialLoss = size * math.Abs(d.VaR)
	d.Approved = p.Balance > 0 && d.PotentialLoss <= d.AllowedLoss
	if !d.Approved {
		d.Reason = "potential loss exceeds allowed loss"
		if p.Balance <= 0 {
			d.Reason = "non-positive balance"
		}
	}
	if vol != nil {
		v := *vol
		loss := size * math.Min(v, e.cfg.VolatilityRiskCeiling)
		d.Volatility = &v
		d.VolatilityLoss = &loss
		if loss > d.AllowedLoss && d.Approved {
			d.Approved = false
			d.Reason = "volatility loss exceeds allowed loss"
		}
	}
	return d
}

func (e *Engine) checkLiquidity(size, balance float64, vol *float64) domain.LiquidityDiagnostics {
	adj := 1.0
	if vol != nil {
		adj = domain.Clamp(e.cfg.VolatilityRiskCeiling/math.Max(*vol, minVol), 0.25, 1)
	}
	d := domain.LiquidityDiagnostics{
		VolatilityAdjustment: adj,
		MaxAllocation:        balance * e.cfg.MaxSingleOrderRatio * adj,
		OrderSize:            size,
	}
	d.Approved = balance > 0 && size <= d.MaxAllocation
	if !d.Approved {
		d.Reason = "order size exceeds max allocation"
		if balance <= 0 {
			d.Reason = "non-positive balance"
		}
	}
	return d
}

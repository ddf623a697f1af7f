package strategy

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// MomentumName es el nombre registrado de la estrategia.
const MomentumName = "momentum_scalping"

// MomentumParams configura Momentum.
type MomentumParams struct {
	Filters `yaml:",inline"`

	Threshold            float64 `yaml:"threshold"`
	RequireConsistency1h bool    `yaml:"require_consistency_1h"`
	Min1hMagnitude       float64 `yaml:"min_1h_magnitude"`
}

// DefaultMomentumParams devuelve los parámetros por defecto.
func DefaultMomentumParams() MomentumParams {
	return MomentumParams{Threshold: 0.02, Min1hMagnitude: 0.005}
}

// Momentum sigue el cambio de precio de 24h normalizado por volatilidad.
type Momentum struct {
	p MomentumParams
}

// NewMomentum es la Factory de momentum_scalping.
func NewMomentum(raw Params, defaults Filters) (Strategy, error) {
	p := DefaultMomentumParams()
	p.Filters = defaults
	if err := decodeParams(raw, &p); err != nil {
		return nil, fmt.Errorf("momentum_scalping: %w", err)
	}
	return NewMomentumWith(p), nil
}

// NewMomentumWith construye la estrategia con parámetros ya tipados.
func NewMomentumWith(p MomentumParams) *Momentum {
	return &Momentum{p: p}
}

// Name implementa Strategy.
func (m *Momentum) Name() string { return MomentumName }

// Evaluate implementa Strategy.
func (m *Momentum) Evaluate(s domain.MarketSnapshot) (domain.StrategyDecision, bool) {
	if !m.p.Admit(s) {
		return domain.StrategyDecision{}, false
	}
	var delta float64
	switch {
	case s.PriceChange24h != nil:
		delta = *s.PriceChange24h
	case s.Momentum != nil:
		delta = *s.Momentum
	default:
		return domain.StrategyDecision{}, false
	}
	if math.Abs(delta) < m.p.Threshold {
		return domain.StrategyDecision{}, false
	}

	if m.p.RequireConsistency1h && s.PriceChange1h != nil {
		ch1 := *s.PriceChange1h
		if math.Abs(ch1) >= m.p.Min1hMagnitude && (delta > 0 && ch1 < 0 || delta < 0 && ch1 > 0) {
			return domain.StrategyDecision{}, false
		}
	}

	vol := s.VolatilityRef()
	norm := delta / math.Max(math.Max(m.p.Threshold, vol), 1e-6)
	bias := domain.Clamp(norm, -1, 1)
	conf := domain.Clamp(math.Abs(norm), 0, 1)
	if conf < m.p.MinConfidence {
		return domain.StrategyDecision{}, false
	}

	// Contrarian guard: con poca confianza no se va contra la lectura de
	// mean-reversion cuando el mid está lejos de 0.5.
	if conf < 0.7 {
		if mid, ok := momentumMid(s); ok {
			diff := 0.5 - mid
			if math.Abs(diff) >= 0.01 && (delta > 0) != (diff > 0) {
				return domain.StrategyDecision{}, false
			}
		}
	}

	return domain.StrategyDecision{
		Bias:       bias,
		Confidence: conf,
		SizeHint:   math.Min(1, conf+math.Min(1, math.Abs(norm))),
		Reason:     fmt.Sprintf("delta=%.3f", delta),
		Metadata: domain.Metadata{
			"momentum":            delta,
			"normalized_momentum": norm,
			"volatility_ref":      vol,
		},
	}.Clamp(), true
}

// momentumMid prefiere mid_price sobre el midpoint de las quotes.
func momentumMid(s domain.MarketSnapshot) (float64, bool) {
	if s.MidPrice != nil {
		return *s.MidPrice, true
	}
	if bid, ask, ok := s.Quotes(); ok {
		return (bid + ask) / 2, true
	}
	return 0, false
}

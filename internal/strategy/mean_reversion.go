package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// MeanReversionName es el nombre registrado de la estrategia.
const MeanReversionName = "mean_reversion"

// MeanReversionParams configura MeanReversion.
type MeanReversionParams struct {
	Filters `yaml:",inline"`

	MidTarget                  float64 `yaml:"mid_target"`
	Sensitivity                float64 `yaml:"sensitivity"`
	MinDeviation               float64 `yaml:"min_deviation"`
	RequireNonNegativeMomentum bool    `yaml:"require_non_negative_momentum"`
	PriceExtremeBound          float64 `yaml:"price_extreme_bound"`
	UseDynamicTarget           bool    `yaml:"use_dynamic_target"`
	DynamicTargetAlpha         float64 `yaml:"dynamic_target_alpha"`
}

// DefaultMeanReversionParams devuelve los parámetros por defecto.
func DefaultMeanReversionParams() MeanReversionParams {
	return MeanReversionParams{
		MidTarget:          0.5,
		Sensitivity:        0.2,
		UseDynamicTarget:   true,
		DynamicTargetAlpha: 0.2,
	}
}

// MeanReversion apuesta a que el mid vuelve a un fair value que se suaviza
// exponencialmente por mercado.
type MeanReversion struct {
	p MeanReversionParams

	mu      sync.Mutex
	targets map[string]float64 // market_id → target suavizado
}

// NewMeanReversion es la Factory de mean_reversion.
func NewMeanReversion(raw Params, defaults Filters) (Strategy, error) {
	p := DefaultMeanReversionParams()
	p.Filters = defaults
	if err := decodeParams(raw, &p); err != nil {
		return nil, fmt.Errorf("mean_reversion: %w", err)
	}
	return NewMeanReversionWith(p), nil
}

// NewMeanReversionWith construye la estrategia con parámetros ya tipados.
func NewMeanReversionWith(p MeanReversionParams) *MeanReversion {
	return &MeanReversion{p: p, targets: make(map[string]float64)}
}

// Name implementa Strategy.
func (m *MeanReversion) Name() string { return MeanReversionName }

// Target devuelve el target actual del mercado (mid_target si aún no hay estado).
func (m *MeanReversion) Target(marketID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTarget(marketID)
}

func (m *MeanReversion) currentTarget(marketID string) float64 {
	if t, ok := m.targets[marketID]; ok {
		return t
	}
	return m.p.MidTarget
}

// Evaluate implementa Strategy. El target se actualiza después de cada
// evaluación con mid válido, haya señal o no.
func (m *MeanReversion) Evaluate(s domain.MarketSnapshot) (domain.StrategyDecision, bool) {
	if !m.p.Admit(s) {
		return domain.StrategyDecision{}, false
	}
	bid, ask, ok := s.Quotes()
	if !ok || bid <= 0 || ask <= 0 {
		return domain.StrategyDecision{}, false
	}
	mid := (bid + ask) / 2

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.updateTarget(s.MarketID, mid)

	if b := m.p.PriceExtremeBound; b > 0 && (mid < b || mid > 1-b) {
		return domain.StrategyDecision{}, false
	}

	target := m.p.MidTarget
	if s.MarketID != "" {
		target = m.currentTarget(s.MarketID)
	}
	diff := target - mid
	if m.p.MinDeviation > 0 && math.Abs(diff) < m.p.MinDeviation {
		return domain.StrategyDecision{}, false
	}
	if m.p.RequireNonNegativeMomentum && diff > 0 {
		if mom, ok := firstMomentum(s); ok && mom < 0 {
			return domain.StrategyDecision{}, false
		}
	}

	bias := domain.Clamp(diff/math.Max(m.p.Sensitivity, 1e-6), -1, 1)
	conf := domain.Clamp(math.Abs(diff)/math.Max(m.p.Sensitivity*0.75, 1e-6), 0, 1)
	if conf < m.p.MinConfidence {
		return domain.StrategyDecision{}, false
	}
	return domain.StrategyDecision{
		Bias:       bias,
		Confidence: conf,
		SizeHint:   math.Min(1, conf+math.Abs(bias)/2),
		Reason:     fmt.Sprintf("mid=%.3f, target=%.3f", mid, target),
		Metadata: domain.Metadata{
			"mid_price":    mid,
			"target_price": target,
			"deviation":    diff,
		},
	}.Clamp(), true
}

// updateTarget aplica el EMA. Requiere m.mu.
func (m *MeanReversion) updateTarget(marketID string, mid float64) {
	if !m.p.UseDynamicTarget || marketID == "" {
		return
	}
	alpha := domain.Clamp(m.p.DynamicTargetAlpha, 0, 1)
	next := (1-alpha)*m.currentTarget(marketID) + alpha*mid
	m.targets[marketID] = domain.Clamp(next, 0.01, 0.99)
}

// firstMomentum lee price_change_1h, luego price_change_24h, luego momentum.
func firstMomentum(s domain.MarketSnapshot) (float64, bool) {
	for _, v := range []*float64{s.PriceChange1h, s.PriceChange24h, s.Momentum} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

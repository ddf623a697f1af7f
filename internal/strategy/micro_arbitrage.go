package strategy

import (
	"fmt"
	"math"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// MicroArbitrageName es el nombre registrado de la estrategia.
const MicroArbitrageName = "micro_arbitrage"

// MicroArbitrageParams configura MicroArbitrage.
type MicroArbitrageParams struct {
	Filters `yaml:",inline"`

	MinSpread             float64  `yaml:"min_spread"`
	TakerFee              float64  `yaml:"taker_fee"`
	MinNetEdge            float64  `yaml:"min_net_edge"`
	ExternalSpreadMax     float64  `yaml:"external_spread_max"`
	MinLocalLiquidity     float64  `yaml:"min_local_liquidity"`
	ExternalFee           float64  `yaml:"external_fee"`
	InternalEdgeThreshold float64  `yaml:"internal_edge_threshold"`
	InternalConfScale     float64  `yaml:"internal_confidence_scale"`
	MinReferenceVolume    float64  `yaml:"min_reference_volume"`
	AllowExternalFallback bool     `yaml:"allow_external_fallback"`
	AllowedRiskLevels     []string `yaml:"allowed_risk_levels"`
}

// DefaultMicroArbitrageParams devuelve los parámetros por defecto.
func DefaultMicroArbitrageParams() MicroArbitrageParams {
	return MicroArbitrageParams{
		MinSpread:             0.02,
		TakerFee:              0.003,
		MinNetEdge:            0.002,
		ExternalSpreadMax:     0.05,
		ExternalFee:           0.0015,
		InternalEdgeThreshold: 0.015,
		InternalConfScale:     1,
		AllowExternalFallback: true,
	}
}

// MicroArbitrage busca desalineaciones de precio contra mercados de
// referencia internos y, como fallback, contra un venue externo.
type MicroArbitrage struct {
	p      MicroArbitrageParams
	levels mapset.Set[string]
}

// NewMicroArbitrage es la Factory de micro_arbitrage.
func NewMicroArbitrage(raw Params, defaults Filters) (Strategy, error) {
	p := DefaultMicroArbitrageParams()
	p.Filters = defaults
	if err := decodeParams(raw, &p); err != nil {
		return nil, fmt.Errorf("micro_arbitrage: %w", err)
	}
	return NewMicroArbitrageWith(p), nil
}

// NewMicroArbitrageWith construye la estrategia con parámetros ya tipados.
func NewMicroArbitrageWith(p MicroArbitrageParams) *MicroArbitrage {
	levels := mapset.NewThreadUnsafeSet[string]()
	for _, l := range p.AllowedRiskLevels {
		levels.Add(strings.ToUpper(l))
	}
	return &MicroArbitrage{p: p, levels: levels}
}

// Name implementa Strategy.
func (m *MicroArbitrage) Name() string { return MicroArbitrageName }

// Evaluate implementa Strategy. Primero modo interno; si no hay edge y el
// fallback está habilitado, modo externo.
func (m *MicroArbitrage) Evaluate(s domain.MarketSnapshot) (domain.StrategyDecision, bool) {
	if !m.p.Admit(s) {
		return domain.StrategyDecision{}, false
	}
	if m.levels.Cardinality() > 0 && s.RiskLevel != "" && !m.levels.Contains(strings.ToUpper(s.RiskLevel)) {
		return domain.StrategyDecision{}, false
	}
	if d, ok := m.evaluateInternal(s); ok {
		return d, true
	}
	if !m.p.AllowExternalFallback {
		return domain.StrategyDecision{}, false
	}
	return m.evaluateExternal(s)
}

type internalSignal struct {
	direction domain.Action
	edge      float64
	ref       domain.ReferenceMarket
}

func (m *MicroArbitrage) evaluateInternal(s domain.MarketSnapshot) (domain.StrategyDecision, bool) {
	if len(s.InternalRefs) == 0 {
		return domain.StrategyDecision{}, false
	}
	bid, ask, ok := s.Quotes()
	if !ok || s.YesPrice == nil {
		return domain.StrategyDecision{}, false
	}
	if !m.hasMinLiquidity(s) {
		return domain.StrategyDecision{}, false
	}

	buffer := m.p.TakerFee + m.p.ExternalFee
	var best *internalSignal
	for _, ref := range s.InternalRefs {
		if ref.YesPrice == nil {
			continue
		}
		longEdge := *ref.YesPrice - ask - buffer
		shortEdge := bid - *ref.YesPrice - buffer
		var sig internalSignal
		switch {
		case longEdge > m.p.InternalEdgeThreshold:
			sig = internalSignal{direction: domain.ActionYes, edge: longEdge, ref: ref}
		case shortEdge > m.p.InternalEdgeThreshold:
			sig = internalSignal{direction: domain.ActionNo, edge: shortEdge, ref: ref}
		default:
			continue
		}
		if best == nil || sig.edge > best.edge {
			best = &sig
		}
	}
	if best == nil {
		return domain.StrategyDecision{}, false
	}

	volumeFactor := 1.0
	if m.p.MinReferenceVolume > 0 && best.ref.Volume24h != nil {
		volumeFactor = math.Min(1, math.Max(0, *best.ref.Volume24h)/m.p.MinReferenceVolume)
	}
	conf := math.Min(1, best.edge/math.Max(m.p.InternalEdgeThreshold, 1e-6)*m.p.InternalConfScale) * volumeFactor
	if conf < m.p.MinConfidence {
		return domain.StrategyDecision{}, false
	}
	bias := 1.0
	if best.direction == domain.ActionNo {
		bias = -1
	}
	md := domain.Metadata{
		"mode":                    "internal",
		"reference_market_id":     best.ref.MarketID,
		"reference_condition_id":  best.ref.ConditionID,
		"edge":                    best.edge,
		"exclusive":               true,
		"internal_edge_threshold": m.p.InternalEdgeThreshold,
	}
	if best.ref.YesPrice != nil {
		md["reference_yes_price"] = *best.ref.YesPrice
	}
	return domain.StrategyDecision{
		Bias:       bias,
		Confidence: conf,
		SizeHint:   math.Min(1, conf+volumeFactor*0.3),
		Reason:     fmt.Sprintf("internal_edge=%.4f, ref=%s", best.edge, best.ref.MarketID),
		Metadata:   md,
	}.Clamp(), true
}

func (m *MicroArbitrage) evaluateExternal(s domain.MarketSnapshot) (domain.StrategyDecision, bool) {
	if !s.ExternalReal {
		return domain.StrategyDecision{}, false
	}
	bid, ask, ok := s.Quotes()
	if !ok || s.ExternalBid == nil || s.ExternalAsk == nil {
		return domain.StrategyDecision{}, false
	}
	extBid, extAsk := *s.ExternalBid, *s.ExternalAsk
	if !m.hasMinLiquidity(s) {
		return domain.StrategyDecision{}, false
	}
	if math.Abs(ask-bid) > m.p.MinSpread {
		return domain.StrategyDecision{}, false
	}
	extSpread := math.Abs(extAsk - extBid)
	if m.p.ExternalSpreadMax > 0 && extAsk >= extBid && extSpread > m.p.ExternalSpreadMax {
		return domain.StrategyDecision{}, false
	}

	fee := math.Max(0, m.p.TakerFee)
	buyEdge := (extBid - ask) - fee
	sellEdge := (bid - extAsk) - fee

	var bias, conf float64
	var reasons []string
	floor := math.Max(m.p.MinNetEdge, 1e-6)
	if buyEdge > m.p.MinNetEdge {
		inc := math.Min(1, buyEdge/floor)
		bias += inc
		conf = math.Max(conf, inc)
		reasons = append(reasons, fmt.Sprintf("buy_edge=%.3f", buyEdge))
	}
	if sellEdge > m.p.MinNetEdge {
		inc := math.Min(1, sellEdge/floor)
		bias -= inc
		conf = math.Max(conf, inc)
		reasons = append(reasons, fmt.Sprintf("sell_edge=%.3f", sellEdge))
	}
	if bias == 0 || conf < m.p.MinConfidence {
		return domain.StrategyDecision{}, false
	}

	md := domain.Metadata{
		"mode":            "external",
		"external_bid":    extBid,
		"external_ask":    extAsk,
		"local_bid":       bid,
		"local_ask":       ask,
		"external_spread": extSpread,
		"buy_edge":        buyEdge,
		"sell_edge":       sellEdge,
		"taker_fee":       m.p.TakerFee,
		"min_net_edge":    m.p.MinNetEdge,
	}
	if liq, ok := s.LocalLiquidity(); ok {
		md["local_liquidity"] = liq
	}
	return domain.StrategyDecision{
		Bias:       bias,
		Confidence: conf,
		SizeHint:   math.Min(1, conf+math.Abs(bias)/2),
		Reason:     strings.Join(reasons, "; "),
		Metadata:   md,
	}.Clamp(), true
}

func (m *MicroArbitrage) hasMinLiquidity(s domain.MarketSnapshot) bool {
	if m.p.MinLocalLiquidity <= 0 {
		return true
	}
	liq, ok := s.LocalLiquidity()
	return ok && liq >= m.p.MinLocalLiquidity
}

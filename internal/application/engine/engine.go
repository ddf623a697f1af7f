package engine

import (
	"log/slog"
	"math"
	"sync"

	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/strategy"
)

// Strategy names whose metadata feeds the edge estimate.
const (
	edgeFromDeviation = strategy.MeanReversionName
	edgeFromMomentum  = strategy.MomentumName
)

// FeeProvider devuelve el fee schedule cacheado sin bloquear.
type FeeProvider interface {
	Current() domain.FeeSchedule
}

// Thresholds sobreescribe signal floor y consensus mínimo. nil = no tocar.
type Thresholds struct {
	SignalFloor  *float64
	ConsensusMin *int
}

// Config holds the aggregation and sizing settings.
type Config struct {
	InitialBalance    float64
	MaxSinglePosition float64 // fracción del balance por orden
	MinPositionSize   float64
	SignalFloor       float64
	ConsensusMin      int
	SlippageModel     string // taker | maker | maker_limit | mid
	EdgeRiskPremium   float64
	Overrides         map[string]Thresholds // por market_id
}

// DefaultConfig devuelve los valores por defecto del engine.
func DefaultConfig() Config {
	return Config{
		InitialBalance:    10_000,
		MaxSinglePosition: 0.05,
		MinPositionSize:   100,
		SignalFloor:       0.12,
		ConsensusMin:      2,
		SlippageModel:     "taker",
		EdgeRiskPremium:   0.005,
	}
}

// Engine agrega las decisiones de las estrategias en un OrderIntent por tick.
// Es seguro para uso concurrente siempre que cada mercado lo evalúe un solo
// caller a la vez (las estrategias con estado por mercado lo asumen).
type Engine struct {
	specs []strategy.Spec
	cfg   Config
	fees  FeeProvider

	mu             sync.RWMutex
	runtimeBalance float64 // 0 = sin balance runtime
}

// New crea el engine. specs se evalúan en el orden dado.
func New(specs []strategy.Spec, fees FeeProvider, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = def.InitialBalance
	}
	if cfg.MaxSinglePosition <= 0 {
		cfg.MaxSinglePosition = def.MaxSinglePosition
	}
	if cfg.SlippageModel == "" {
		cfg.SlippageModel = def.SlippageModel
	}
	return &Engine{specs: specs, cfg: cfg, fees: fees}
}

// UpdateRuntimeBalance guarda el último balance del portfolio para el sizing.
// Valores no finitos o <= 0 limpian el balance y se vuelve al inicial.
func (e *Engine) UpdateRuntimeBalance(balance *float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if balance == nil || math.IsNaN(*balance) || math.IsInf(*balance, 0) || *balance <= 0 {
		e.runtimeBalance = 0
		return
	}
	e.runtimeBalance = *balance
}

// BalanceReference devuelve el balance usado para el sizing.
func (e *Engine) BalanceReference() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.runtimeBalance > 0 {
		return e.runtimeBalance
	}
	return e.cfg.InitialBalance
}

type scored struct {
	spec     strategy.Spec
	decision domain.StrategyDecision
}

// GenerateOrder consulta todas las estrategias y devuelve el intent agregado.
// Nunca falla: cualquier motivo para no operar es un hold con reason.
func (e *Engine) GenerateOrder(s domain.MarketSnapshot) domain.OrderIntent {
	if len(e.specs) == 0 {
		return e.hold(s, domain.HoldNoStrategies, nil)
	}

	var accepted []scored
	var contribs []domain.Contribution
	var exclusive *strategy.Spec
	for _, spec := range e.specs {
		d, ok := spec.Strategy.Evaluate(s)
		if !ok {
			continue
		}
		d = d.Clamp()
		if d.Confidence < spec.MinConfidence {
			continue
		}
		c := domain.Contribution{
			Name:       spec.Name,
			Bias:       d.Bias,
			Confidence: d.Confidence,
			SizeHint:   d.SizeHint,
			Reason:     d.Reason,
			Metadata:   d.Metadata.Clone(),
		}
		if spec.Exclusive || d.Exclusive() {
			c.Exclusive = true
			accepted = []scored{{spec, d}}
			contribs = []domain.Contribution{c}
			exclusive = &spec
			break
		}
		accepted = append(accepted, scored{spec, d})
		contribs = append(contribs, c)
	}
	if len(accepted) == 0 {
		return e.hold(s, domain.HoldNoSignal, nil)
	}

	var totalWeight, wBias, wConf, wSize float64
	for _, a := range accepted {
		w := a.spec.Weight
		totalWeight += w
		wBias += w * a.decision.Bias * a.decision.Confidence
		wConf += w * a.decision.Confidence
		wSize += w * a.decision.SizeHint
	}
	if totalWeight <= 0 {
		return e.hold(s, domain.HoldInvalidWeight, contribs)
	}
	bias := wBias / totalWeight
	conf := wConf / totalWeight
	sizeHint := wSize / totalWeight

	floor, consensusMin := e.thresholds(s.MarketID, exclusive)
	if math.Abs(bias) < floor || conf < floor {
		slog.Debug("engine: hold weak signal", "market", s.MarketID, "bias", bias, "confidence", conf, "floor", floor)
		return e.hold(s, domain.HoldWeakSignal, contribs)
	}

	action := domain.ActionNo
	if bias > 0 {
		action = domain.ActionYes
	}

	if exclusive == nil {
		agree := 0
		for _, c := range contribs {
			if action == domain.ActionYes && c.Bias > 0 || action == domain.ActionNo && c.Bias < 0 {
				agree++
			}
		}
		if agree < consensusMin {
			slog.Debug("engine: hold insufficient consensus", "market", s.MarketID, "agree", agree, "required", consensusMin)
			return e.hold(s, domain.HoldInsufficientConsensus, contribs)
		}

		if edge, cost, ok := e.edgeVersusCost(s, contribs); ok && edge <= cost {
			slog.Debug("engine: hold insufficient edge", "market", s.MarketID, "edge", edge, "cost_budget", cost)
			return e.hold(s, domain.HoldInsufficientEdge, contribs)
		}
	}

	balanceRef := e.BalanceReference()
	volFactor := 1.0
	if s.Volatility != nil {
		switch v := *s.Volatility; {
		case v > 0.2:
			volFactor = 0.5
		case v > 0.1:
			volFactor = 0.75
		}
	}
	scale := domain.Clamp(sizeHint*conf, 0.1, 0.12)
	size := math.Max(e.cfg.MinPositionSize, balanceRef*e.cfg.MaxSinglePosition*scale*volFactor)

	md := domain.Metadata{
		"decision":          "execute",
		"combined_score":    bias,
		"confidence":        conf,
		"size_hint":         sizeHint,
		"strategies":        contribs,
		"balance_reference": balanceRef,
	}
	intent := domain.OrderIntent{
		MarketID:         s.MarketID,
		Action:           action,
		Size:             domain.Round4(size),
		Metadata:         md,
		CombinedScore:    bias,
		Confidence:       conf,
		SizeHint:         sizeHint,
		Contributions:    contribs,
		BalanceReference: balanceRef,
	}
	if exclusive != nil {
		md["exclusive_strategy"] = exclusive.Name
		intent.ExclusiveStrategy = exclusive.Name
	}
	if s.Volatility != nil {
		md["volatility"] = *s.Volatility
	}
	slog.Debug("engine: execute", "market", s.MarketID, "action", action, "size", intent.Size, "score", bias, "confidence", conf)
	return intent
}

// thresholds resuelve signal floor y consensus: global, luego la estrategia
// exclusiva, luego el override del mercado.
func (e *Engine) thresholds(marketID string, exclusive *strategy.Spec) (float64, int) {
	floor, consensus := e.cfg.SignalFloor, e.cfg.ConsensusMin
	if exclusive != nil {
		if exclusive.SignalFloor != nil {
			floor = *exclusive.SignalFloor
		}
		if exclusive.ConsensusMin != nil {
			consensus = *exclusive.ConsensusMin
		}
	}
	if ov, ok := e.cfg.Overrides[marketID]; ok {
		if ov.SignalFloor != nil {
			floor = *ov.SignalFloor
		}
		if ov.ConsensusMin != nil {
			consensus = *ov.ConsensusMin
		}
	}
	return floor, consensus
}

// edgeVersusCost estima el edge a partir de la metadata de las contribuciones
// y el coste fee + half spread + prima de riesgo. ok=false sin bid y ask.
func (e *Engine) edgeVersusCost(s domain.MarketSnapshot, contribs []domain.Contribution) (edge, cost float64, ok bool) {
	bid, ask, ok := s.Quotes()
	if !ok {
		return 0, 0, false
	}
	fee := 0.0
	if e.fees != nil {
		fee = e.fees.Current().RateFor(e.cfg.SlippageModel)
	}
	cost = fee + math.Max(0, (ask-bid)/2) + e.cfg.EdgeRiskPremium
	mid := (bid + ask) / 2
	for _, c := range contribs {
		switch c.Name {
		case edgeFromDeviation:
			if dev, ok := c.Metadata.Float("deviation"); ok {
				edge = math.Max(edge, math.Abs(dev))
			}
		case edgeFromMomentum:
			if mom, ok := c.Metadata.Float("momentum"); ok {
				edge = math.Max(edge, math.Abs(mom)*mid)
			}
		}
	}
	return edge, cost, true
}

func (e *Engine) hold(s domain.MarketSnapshot, reason string, contribs []domain.Contribution) domain.OrderIntent {
	md := domain.Metadata{"reason": reason, "decision": "hold"}
	if len(contribs) > 0 {
		md["strategies"] = contribs
	}
	slog.Debug("engine: hold", "market", s.MarketID, "reason", reason, "contributions", len(contribs))
	return domain.OrderIntent{
		MarketID:      s.MarketID,
		Action:        domain.ActionHold,
		Metadata:      md,
		Contributions: contribs,
		HoldReason:    reason,
	}
}

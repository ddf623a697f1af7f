package engine_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polytrader/internal/application/engine"
	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/strategy"
)

type fixedStrategy struct {
	name string
	d    domain.StrategyDecision
	ok   bool
}

func (f fixedStrategy) Name() string { return f.name }
func (f fixedStrategy) Evaluate(domain.MarketSnapshot) (domain.StrategyDecision, bool) {
	return f.d, f.ok
}

type staticFees domain.FeeSchedule

func (s staticFees) Current() domain.FeeSchedule { return domain.FeeSchedule(s) }

func spec(name string, weight float64, d domain.StrategyDecision) strategy.Spec {
	return strategy.Spec{Name: name, Weight: weight, Strategy: fixedStrategy{name: name, d: d, ok: true}}
}

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.MinPositionSize = 10
	return cfg
}

func TestGenerateOrder_NoStrategies(t *testing.T) {
	e := engine.New(nil, nil, testConfig())
	intent := e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"})
	assert.True(t, intent.IsHold())
	assert.Equal(t, domain.HoldNoStrategies, intent.HoldReason)
}

func TestGenerateOrder_NoSignal(t *testing.T) {
	abstain := strategy.Spec{Name: "a", Weight: 1, Strategy: fixedStrategy{name: "a"}}
	e := engine.New([]strategy.Spec{abstain}, nil, testConfig())
	intent := e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"})
	assert.Equal(t, domain.HoldNoSignal, intent.HoldReason)
	assert.Equal(t, 0.0, intent.Size)
}

func TestGenerateOrder_MinConfidenceDropsDecision(t *testing.T) {
	sp := spec("a", 1, domain.StrategyDecision{Bias: 1, Confidence: 0.3})
	sp.MinConfidence = 0.5
	e := engine.New([]strategy.Spec{sp}, nil, testConfig())
	assert.Equal(t, domain.HoldNoSignal, e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"}).HoldReason)
}

func TestGenerateOrder_WeightedAggregation(t *testing.T) {
	e := engine.New([]strategy.Spec{
		spec("a", 1, domain.StrategyDecision{Bias: 0.6, Confidence: 0.5, SizeHint: 1}),
		spec("b", 3, domain.StrategyDecision{Bias: 0.4, Confidence: 1, SizeHint: 1}),
	}, nil, testConfig())

	intent := e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"})
	require.Equal(t, domain.ActionYes, intent.Action)
	assert.InDelta(t, 0.375, intent.CombinedScore, 1e-9)
	assert.InDelta(t, 0.875, intent.Confidence, 1e-9)
	assert.InDelta(t, 1.0, intent.SizeHint, 1e-9)
	// 10000 × 0.05 × 0.12
	assert.InDelta(t, 60, intent.Size, 1e-9)
	assert.Len(t, intent.Contributions, 2)
	assert.Equal(t, 10_000.0, intent.BalanceReference)
	assert.Equal(t, "execute", intent.Metadata["decision"])
}

func TestGenerateOrder_ExclusiveWins(t *testing.T) {
	e := engine.New([]strategy.Spec{
		spec("a", 1, domain.StrategyDecision{Bias: 0.9, Confidence: 0.9, SizeHint: 1}),
		spec("event", 1, domain.StrategyDecision{Bias: -0.8, Confidence: 0.8, SizeHint: 1, Metadata: domain.Metadata{"exclusive": true}}),
		spec("c", 1, domain.StrategyDecision{Bias: 0.9, Confidence: 0.9, SizeHint: 1}),
	}, nil, testConfig())

	intent := e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"})
	require.Equal(t, domain.ActionNo, intent.Action, "exclusive skips consensus")
	require.Len(t, intent.Contributions, 1)
	assert.True(t, intent.Contributions[0].Exclusive)
	assert.Equal(t, "event", intent.ExclusiveStrategy)
	assert.InDelta(t, -0.64, intent.CombinedScore, 1e-9)
}

func TestGenerateOrder_ExclusiveFromConfig(t *testing.T) {
	sp := spec("a", 1, domain.StrategyDecision{Bias: 0.5, Confidence: 0.5, SizeHint: 1})
	sp.Exclusive = true
	e := engine.New([]strategy.Spec{sp}, nil, testConfig())
	intent := e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"})
	assert.Equal(t, domain.ActionYes, intent.Action)
	assert.Equal(t, "a", intent.ExclusiveStrategy)
}

func TestGenerateOrder_WeakSignal(t *testing.T) {
	e := engine.New([]strategy.Spec{
		spec("a", 1, domain.StrategyDecision{Bias: 0.2, Confidence: 0.5}),
		spec("b", 1, domain.StrategyDecision{Bias: 0.2, Confidence: 0.5}),
	}, nil, testConfig())
	intent := e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"})
	assert.Equal(t, domain.HoldWeakSignal, intent.HoldReason)
	assert.Len(t, intent.Contributions, 2)
}

func TestGenerateOrder_InsufficientConsensus(t *testing.T) {
	e := engine.New([]strategy.Spec{
		spec("a", 3, domain.StrategyDecision{Bias: 1, Confidence: 1}),
		spec("b", 1, domain.StrategyDecision{Bias: -0.5, Confidence: 0.5}),
	}, nil, testConfig())
	intent := e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"})
	assert.Equal(t, domain.HoldInsufficientConsensus, intent.HoldReason)
}

func TestGenerateOrder_MarketOverride(t *testing.T) {
	one := 1
	cfg := testConfig()
	cfg.Overrides = map[string]engine.Thresholds{"m1": {ConsensusMin: &one}}
	e := engine.New([]strategy.Spec{
		spec("a", 3, domain.StrategyDecision{Bias: 1, Confidence: 1}),
		spec("b", 1, domain.StrategyDecision{Bias: -0.5, Confidence: 0.5}),
	}, nil, cfg)
	assert.Equal(t, domain.ActionYes, e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"}).Action)
	assert.Equal(t, domain.HoldInsufficientConsensus, e.GenerateOrder(domain.MarketSnapshot{MarketID: "m2"}).HoldReason)
}

func TestGenerateOrder_ExclusiveStrategyFloor(t *testing.T) {
	high := 0.9
	sp := spec("event", 1, domain.StrategyDecision{Bias: 0.6, Confidence: 0.6, Metadata: domain.Metadata{"exclusive": true}})
	sp.SignalFloor = &high
	e := engine.New([]strategy.Spec{sp}, nil, testConfig())
	assert.Equal(t, domain.HoldWeakSignal, e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"}).HoldReason)
}

func TestGenerateOrder_EdgeGate(t *testing.T) {
	fees := staticFees{Taker: 0.005, Maker: 0}
	snap := domain.MarketSnapshot{MarketID: "m1", Bid: domain.Float(0.49), Ask: domain.Float(0.51)}
	build := func(dev float64) *engine.Engine {
		return engine.New([]strategy.Spec{
			spec(strategy.MeanReversionName, 1, domain.StrategyDecision{Bias: 0.5, Confidence: 0.5, Metadata: domain.Metadata{"deviation": dev}}),
			spec(strategy.MomentumName, 1, domain.StrategyDecision{Bias: 0.5, Confidence: 0.5, Metadata: domain.Metadata{"momentum": 0.01}}),
		}, fees, testConfig())
	}

	// cost = 0.005 + 0.01 + 0.005 = 0.02
	assert.Equal(t, domain.HoldInsufficientEdge, build(0.015).GenerateOrder(snap).HoldReason)
	assert.Equal(t, domain.ActionYes, build(0.05).GenerateOrder(snap).Action)
}

func TestGenerateOrder_EdgeGateUsesMakerFee(t *testing.T) {
	fees := staticFees{Taker: 0.05, Maker: 0}
	cfg := testConfig()
	cfg.SlippageModel = "maker_limit"
	e := engine.New([]strategy.Spec{
		spec(strategy.MeanReversionName, 1, domain.StrategyDecision{Bias: 0.5, Confidence: 0.5, Metadata: domain.Metadata{"deviation": 0.03}}),
		spec("b", 1, domain.StrategyDecision{Bias: 0.5, Confidence: 0.5}),
	}, fees, cfg)
	snap := domain.MarketSnapshot{MarketID: "m1", Bid: domain.Float(0.49), Ask: domain.Float(0.51)}
	assert.Equal(t, domain.ActionYes, e.GenerateOrder(snap).Action)
}

func TestGenerateOrder_EdgeGateNeedsBothQuotes(t *testing.T) {
	e := engine.New([]strategy.Spec{
		spec("a", 1, domain.StrategyDecision{Bias: 0.5, Confidence: 0.5}),
		spec("b", 1, domain.StrategyDecision{Bias: 0.5, Confidence: 0.5}),
	}, staticFees{Taker: 0.5}, testConfig())
	snap := domain.MarketSnapshot{MarketID: "m1", Bid: domain.Float(0.49)}
	assert.Equal(t, domain.ActionYes, e.GenerateOrder(snap).Action)
}

func TestGenerateOrder_Sizing(t *testing.T) {
	specs := []strategy.Spec{
		spec("a", 1, domain.StrategyDecision{Bias: 1, Confidence: 1, SizeHint: 1}),
		spec("b", 1, domain.StrategyDecision{Bias: 1, Confidence: 1, SizeHint: 1}),
	}
	e := engine.New(specs, nil, testConfig())

	balance := 20_000.0
	e.UpdateRuntimeBalance(&balance)
	intent := e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1", Volatility: domain.Float(0.25)})
	// 20000 × 0.05 × 0.12 × 0.5
	assert.InDelta(t, 60, intent.Size, 1e-9)
	assert.Equal(t, 0.25, intent.Metadata["volatility"])

	intent = e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1", Volatility: domain.Float(0.15)})
	assert.InDelta(t, 90, intent.Size, 1e-9)

	nan := math.NaN()
	e.UpdateRuntimeBalance(&nan)
	assert.Equal(t, 10_000.0, e.BalanceReference())

	e.UpdateRuntimeBalance(&balance)
	e.UpdateRuntimeBalance(nil)
	assert.Equal(t, 10_000.0, e.BalanceReference())
}

func TestGenerateOrder_MinPositionFloor(t *testing.T) {
	e := engine.New([]strategy.Spec{
		spec("a", 1, domain.StrategyDecision{Bias: 1, Confidence: 1, SizeHint: 1}),
		spec("b", 1, domain.StrategyDecision{Bias: 1, Confidence: 1, SizeHint: 1}),
	}, nil, engine.DefaultConfig())
	assert.Equal(t, 100.0, e.GenerateOrder(domain.MarketSnapshot{MarketID: "m1"}).Size)
}

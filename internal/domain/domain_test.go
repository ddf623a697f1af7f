package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Snapshot helpers ---

func TestMid_PrefersQuotes(t *testing.T) {
	s := MarketSnapshot{Bid: Float(0.40), Ask: Float(0.42), MidPrice: Float(0.9)}
	mid, ok := s.Mid()
	require.True(t, ok)
	assert.InDelta(t, 0.41, mid, 1e-9)
}

func TestMid_FallbackChain(t *testing.T) {
	s := MarketSnapshot{Bid: Float(0.40), YesPrice: Float(0.3)}
	mid, ok := s.Mid()
	require.True(t, ok)
	assert.Equal(t, 0.3, mid)

	assert.Equal(t, 0.5, MarketSnapshot{}.MidOrDefault())
}

func TestQuotedSpread_UsesFieldWhenQuotesMissing(t *testing.T) {
	s := MarketSnapshot{Spread: Float(0.03)}
	sp, ok := s.QuotedSpread()
	require.True(t, ok)
	assert.Equal(t, 0.03, sp)
}

func TestSentimentAgeAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	updated := now.Add(-10 * time.Minute)
	s := MarketSnapshot{SentimentUpdatedAt: &updated}
	age, ok := s.SentimentAgeAt(now)
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, age)

	_, ok = MarketSnapshot{}.SentimentAgeAt(now)
	assert.False(t, ok)
}

func TestFindReference_CaseInsensitive(t *testing.T) {
	s := MarketSnapshot{InternalRefs: []ReferenceMarket{
		{MarketID: "0xABC", YesPrice: Float(0.6)},
		{MarketID: "m2", ConditionID: "0xCond"},
	}}
	ref, ok := s.FindReference("0xabc")
	require.True(t, ok)
	assert.Equal(t, "0xABC", ref.MarketID)

	ref, ok = s.FindReference("0XCOND")
	require.True(t, ok)
	assert.Equal(t, "m2", ref.MarketID)

	_, ok = s.FindReference("")
	assert.False(t, ok)
}

func TestVolatilityRef_FallbackChain(t *testing.T) {
	assert.Equal(t, 0.0, MarketSnapshot{}.VolatilityRef())
	assert.InDelta(t, 0.3, MarketSnapshot{Volatility: Float(0.3), ATR: Float(0.9)}.VolatilityRef(), 1e-9)
	assert.InDelta(t, 0.2, MarketSnapshot{Volatility: Float(0), Volatility24h: Float(-0.2)}.VolatilityRef(), 1e-9)
	assert.InDelta(t, 0.9, MarketSnapshot{Volatility1h: Float(0), ATR: Float(0.9)}.VolatilityRef(), 1e-9)
}

// --- Decisions ---

func TestStrategyDecision_Clamp(t *testing.T) {
	d := StrategyDecision{Bias: 3, Confidence: -1, SizeHint: 1.7}.Clamp()
	assert.Equal(t, 1.0, d.Bias)
	assert.Equal(t, 0.0, d.Confidence)
	assert.Equal(t, 1.0, d.SizeHint)
	assert.NotNil(t, d.Metadata)
}

func TestMetadata_Float(t *testing.T) {
	m := Metadata{"a": 2, "b": 0.5, "c": "x"}
	v, ok := m.Float("a")
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	_, ok = m.Float("c")
	assert.False(t, ok)
}

// --- Execution report ---

func TestBuildExecutionReport_GeneratesIDAndRounds(t *testing.T) {
	r := BuildExecutionReport(ReportInput{
		MarketID:          "m1",
		Action:            ActionYes,
		RequestedNotional: 100.0000004,
		FilledNotional:    50,
		Status:            ExecPartial,
	})
	assert.Len(t, r.OrderID, 32)
	assert.Equal(t, 100.0, r.RequestedNotional)
	assert.Equal(t, 0.0, r.AveragePrice, "no shares → no average")
	assert.False(t, r.Timestamp.IsZero())
	assert.InDelta(t, 50, r.RemainingNotional(), 1e-9)
}

// --- Order state ---

func TestRecordFill_PendingPartialFilled(t *testing.T) {
	o := &OrderState{OrderID: "o1", RequestedNotional: 100, RequestedShares: 200, Status: OrderPending}

	_, ok := o.RecordFill(FillUpdate{Notional: 50, Shares: 100, Price: 0.5})
	require.True(t, ok)
	assert.Equal(t, OrderPartial, o.Status)

	_, ok = o.RecordFill(FillUpdate{Notional: 50, Shares: 100, Price: 0.5})
	require.True(t, ok)
	assert.Equal(t, OrderFilled, o.Status)
	assert.Len(t, o.Fills, 2)
}

func TestRecordFill_WeightedAverage(t *testing.T) {
	o := &OrderState{OrderID: "o1", RequestedNotional: 1000, RequestedShares: 10000, Status: OrderPending}
	o.RecordFill(FillUpdate{Notional: 40, Shares: 100, Price: 0.4})
	o.RecordFill(FillUpdate{Notional: 150, Shares: 300, Price: 0.5})
	assert.InDelta(t, (0.4*100+0.5*300)/400, o.AveragePrice, 1e-6)
}

func TestRecordFill_ClipsToRemaining(t *testing.T) {
	o := &OrderState{OrderID: "o1", RequestedNotional: 100, RequestedShares: 1000, Status: OrderPending}
	o.RecordFill(FillUpdate{Notional: 80, Shares: 160, Price: 0.5, Fees: 0.8})
	applied, ok := o.RecordFill(FillUpdate{Notional: 40, Shares: 80, Price: 0.5, Fees: 0.4})
	require.True(t, ok)
	assert.InDelta(t, 20, applied.Notional, 1e-9)
	assert.InDelta(t, 40, applied.Shares, 1e-9)
	assert.LessOrEqual(t, o.FilledNotional, o.RequestedNotional)
	assert.Equal(t, OrderFilled, o.Status)
}

func TestRecordFill_IgnoresNonPositive(t *testing.T) {
	o := &OrderState{OrderID: "o1", RequestedNotional: 100, RequestedShares: 200, Status: OrderPending}
	_, ok := o.RecordFill(FillUpdate{Notional: 0, Shares: 10, Price: 0.5})
	assert.False(t, ok)
	_, ok = o.RecordFill(FillUpdate{Notional: 10, Shares: -1, Price: 0.5})
	assert.False(t, ok)
	assert.Equal(t, OrderPending, o.Status)
}

func TestRecordFill_FilledNotionalMonotonic(t *testing.T) {
	o := &OrderState{OrderID: "o1", RequestedNotional: 100, RequestedShares: 1e9, Status: OrderPending}
	prev := 0.0
	for _, n := range []float64{10, 0, 35, -5, 70, 10} {
		o.RecordFill(FillUpdate{Notional: n, Shares: n * 2, Price: 0.5})
		assert.GreaterOrEqual(t, o.FilledNotional, prev)
		assert.LessOrEqual(t, o.FilledNotional, o.RequestedNotional+FillEpsilon)
		prev = o.FilledNotional
	}
}

// --- Positions ---

func TestPosition_PnLPct(t *testing.T) {
	p := &Position{Side: ActionYes, Notional: 50, Shares: 100, EntryYes: 0.5}
	pct, ok := p.PnLPct(MarketSnapshot{Bid: Float(0.55), Ask: Float(0.57)})
	require.True(t, ok)
	assert.InDelta(t, 0.1, pct, 1e-9)

	no := &Position{Side: ActionNo, Notional: 50, Shares: 100, EntryYes: 0.5}
	pct, ok = no.PnLPct(MarketSnapshot{Bid: Float(0.43), Ask: Float(0.45)})
	require.True(t, ok)
	assert.InDelta(t, 0.1, pct, 1e-9)
}

func TestPosition_CloseAt(t *testing.T) {
	p := &Position{MarketID: "m1", Side: ActionNo, Notional: 50, Shares: 100, EntryYes: 0.5}
	exit := p.CloseAt(0.4, "event_driven", "event_trailing_stop", time.Now())
	assert.InDelta(t, 10, exit.RealizedPnL, 1e-9)
	assert.InDelta(t, 0.2, exit.ReturnPct, 1e-9)
}

func TestPosition_CloneDoesNotShareEntryStates(t *testing.T) {
	p := &Position{
		MarketID:   "m1",
		Shares:     10,
		Strategies: map[string]*EntryState{"event_driven": {BestPnLPct: 0.1}, "gone": nil},
	}
	c := p.Clone()
	p.Strategies["event_driven"].BestPnLPct = 0.4
	p.Strategies["new"] = &EntryState{}
	p.Shares = 5

	assert.InDelta(t, 0.1, c.Strategies["event_driven"].BestPnLPct, 1e-9)
	assert.NotContains(t, c.Strategies, "new")
	assert.Contains(t, c.Strategies, "gone")
	assert.Equal(t, 10.0, c.Shares)

	assert.Nil(t, (&Position{}).Clone().Strategies)
}

// --- Fees ---

func TestFeeSchedule_RateFor(t *testing.T) {
	f := FeeSchedule{Maker: 0.001, Taker: 0.005}
	assert.Equal(t, 0.001, f.RateFor("maker"))
	assert.Equal(t, 0.001, f.RateFor("maker_limit"))
	assert.Equal(t, 0.005, f.RateFor("taker"))
	assert.Equal(t, 0.005, f.RateFor("mid"))
}

func TestParseExecutionMode(t *testing.T) {
	assert.Equal(t, ModeLive, ParseExecutionMode("live"))
	assert.Equal(t, ModeDryRun, ParseExecutionMode("dry_run"))
	assert.Equal(t, ModeOffline, ParseExecutionMode("whatever"))
}

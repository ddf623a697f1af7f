package domain

import (
	"math"
	"time"
)

// Position is an open position owned by the runner. Side is the yes-price
// action that opened it.
type Position struct {
	MarketID   string                 `json:"market_id"`
	OrderID    string                 `json:"order_id"`
	Side       Action                 `json:"side"`
	Notional   float64                `json:"notional"`
	Shares     float64                `json:"shares"`
	EntryYes   float64                `json:"entry_yes"`
	OpenedAt   time.Time              `json:"opened_at"`
	BestPnLPct float64                `json:"best_pnl_pct"`
	Strategies map[string]*EntryState `json:"strategy_states"`
}

// EntryState is the entry context one strategy captured when the position was
// opened. Each exit evaluator only reads the fields it wrote, except
// BestPnLPct which the event-driven evaluator keeps updating.
type EntryState struct {
	Exclusive bool     `json:"exclusive"`
	Bias      *float64 `json:"entry_bias,omitempty"`

	// mean_reversion
	MidPrice  *float64 `json:"entry_mid_price,omitempty"`
	Deviation *float64 `json:"entry_deviation,omitempty"`

	// momentum_scalping
	Momentum *float64 `json:"entry_momentum,omitempty"`

	// micro_arbitrage
	ReferenceMarketID string   `json:"reference_market_id,omitempty"`
	Direction         Action   `json:"direction,omitempty"`
	Edge              *float64 `json:"entry_edge,omitempty"`
	Threshold         *float64 `json:"threshold,omitempty"`
	Mode              string   `json:"mode,omitempty"`
	TakerFee          *float64 `json:"taker_fee,omitempty"`

	// event_driven
	Sentiment        *float64 `json:"entry_sentiment,omitempty"`
	Volume           *float64 `json:"entry_volume,omitempty"`
	Spike            *float64 `json:"entry_spike,omitempty"`
	HoldSeconds      int      `json:"hold_seconds,omitempty"`
	HoldToResolution bool     `json:"hold_to_resolution,omitempty"`
	TrailingTrigger  float64  `json:"trailing_trigger_pct,omitempty"`
	TrailingDecay    float64  `json:"trailing_decay_pct,omitempty"`
	BestPnLPct       float64  `json:"best_pnl_pct"`
}

// Clone returns a copy that shares no EntryState with p. The runner mutates
// entry states under its lock, so snapshots handed out must not alias them.
func (p *Position) Clone() Position {
	out := *p
	if p.Strategies == nil {
		return out
	}
	out.Strategies = make(map[string]*EntryState, len(p.Strategies))
	for name, st := range p.Strategies {
		if st == nil {
			out.Strategies[name] = nil
			continue
		}
		cp := *st
		out.Strategies[name] = &cp
	}
	return out
}

// YesMark is the yes-price the position would be marked at: the bid for yes
// positions and the ask for no positions, falling back to the mid.
func (p *Position) YesMark(s MarketSnapshot) float64 {
	mid := s.MidOrDefault()
	if p.Side == ActionYes {
		if s.Bid != nil {
			return *s.Bid
		}
		return mid
	}
	if s.Ask != nil {
		return *s.Ask
	}
	return mid
}

// PnLPct is the unrealized PnL over notional. ok is false when the position
// carries no notional.
func (p *Position) PnLPct(s MarketSnapshot) (float64, bool) {
	if p.Notional == 0 {
		return 0, false
	}
	mark := p.YesMark(s)
	var pnl float64
	if p.Side == ActionYes {
		pnl = p.Shares * (mark - p.EntryYes)
	} else {
		pnl = p.Shares * (p.EntryYes - mark)
	}
	return pnl / math.Max(1e-9, p.Notional), true
}

// Exit decision actions.
const (
	ExitClose = "close"
	ExitHold  = "hold"
)

// ExitDecision is an evaluator's recommendation for an open position.
type ExitDecision struct {
	Action   string
	Reason   string
	Metadata Metadata
}

// IsClose reports whether the decision asks to close the position.
func (d ExitDecision) IsClose() bool { return d.Action == ExitClose }

// RealizedExit is the append-only record written when a position is closed.
type RealizedExit struct {
	MarketID    string
	OrderID     string
	Side        Action
	Strategy    string
	Reason      string
	EntryYes    float64
	ExitYes     float64
	Shares      float64
	Notional    float64
	RealizedPnL float64
	ReturnPct   float64
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// CloseAt builds the realized exit for closing p at exitYes (yes-price space).
func (p *Position) CloseAt(exitYes float64, strategy, reason string, at time.Time) RealizedExit {
	pnl := p.Shares * (exitYes - p.EntryYes)
	if p.Side == ActionNo {
		pnl = -pnl
	}
	ret := 0.0
	if p.Notional > 0 {
		ret = pnl / p.Notional
	}
	return RealizedExit{
		MarketID:    p.MarketID,
		OrderID:     p.OrderID,
		Side:        p.Side,
		Strategy:    strategy,
		Reason:      reason,
		EntryYes:    p.EntryYes,
		ExitYes:     Round6(exitYes),
		Shares:      p.Shares,
		Notional:    p.Notional,
		RealizedPnL: Round6(pnl),
		ReturnPct:   Round6(ret),
		OpenedAt:    p.OpenedAt,
		ClosedAt:    at,
	}
}

package domain

// Action is the direction of an order in yes-price space.
type Action string

const (
	ActionYes  Action = "yes"
	ActionNo   Action = "no"
	ActionHold Action = "hold"
)

// Opposite devuelve la acción que cierra una posición abierta con a.
func (a Action) Opposite() Action {
	switch a {
	case ActionYes:
		return ActionNo
	case ActionNo:
		return ActionYes
	}
	return ActionHold
}

// Hold reasons produced by the strategy engine.
const (
	HoldNoStrategies          = "no_strategies_enabled"
	HoldNoSignal              = "no_signal"
	HoldInvalidWeight         = "invalid_weight"
	HoldWeakSignal            = "weak_signal"
	HoldInsufficientConsensus = "insufficient_consensus"
	HoldInsufficientEdge      = "insufficient_edge"
)

// Contribution records one strategy's accepted decision inside an intent.
type Contribution struct {
	Name       string   `json:"name"`
	Bias       float64  `json:"bias"`
	Confidence float64  `json:"confidence"`
	SizeHint   float64  `json:"size_hint"`
	Reason     string   `json:"reason"`
	Metadata   Metadata `json:"metadata"`
	Exclusive  bool     `json:"exclusive"`
}

// OrderIntent es la orden agregada que produce el strategy engine en un tick.
// Se consume inmediatamente por el risk engine.
type OrderIntent struct {
	MarketID string
	Action   Action
	Size     float64 // notional
	Metadata Metadata

	// Aggregates, also mirrored into Metadata.
	CombinedScore     float64
	Confidence        float64
	SizeHint          float64
	Contributions     []Contribution
	ExclusiveStrategy string
	BalanceReference  float64
	HoldReason        string
	Risk              *RiskReport
}

// IsHold reports whether the intent asks for no trade.
func (o OrderIntent) IsHold() bool {
	return o.Action == ActionHold || o.Action == ""
}

// Volatility returns the volatility figure attached by the engine, if any.
func (o OrderIntent) Volatility() (float64, bool) {
	return o.Metadata.Float("volatility")
}

package domain

import (
	"strings"
	"time"
)

// FeeSchedule holds maker/taker rates as fractions of notional.
type FeeSchedule struct {
	Maker     float64
	Taker     float64
	FetchedAt time.Time
}

// RateFor picks the rate for a slippage model: maker* models pay the maker
// rate, everything else (taker, mid) the taker rate.
func (f FeeSchedule) RateFor(model string) float64 {
	if strings.HasPrefix(strings.ToLower(model), "maker") {
		return f.Maker
	}
	return f.Taker
}

// TickReport resume un tick del runner para el notifier.
type TickReport struct {
	StartedAt     time.Time
	Duration      time.Duration
	Markets       int
	Holds         int
	RiskRejected  int
	Executed      []ExecutionReport
	Closed        []RealizedExit
	OpenPositions int
	Balance       float64
	Summary       TrackerSummary
}

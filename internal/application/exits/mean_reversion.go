package exits

import (
	"math"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/strategy"
)

const (
	meanReversionTarget     = 0.5
	meanReversionSlackRatio = 0.25
	meanReversionStopMult   = 1.6
)

// MeanReversion cierra cuando la desviación respecto de 0.5 se redujo al 25%
// de la de entrada (target) o creció a 1.6× (stop).
type MeanReversion struct{}

func (MeanReversion) Name() string { return strategy.MeanReversionName }

func (MeanReversion) Capture(c domain.Contribution) *domain.EntryState {
	return &domain.EntryState{
		Bias:      ptr(c.Bias),
		MidPrice:  metaFloat(c.Metadata, "mid_price"),
		Deviation: metaFloat(c.Metadata, "deviation"),
	}
}

func (MeanReversion) Evaluate(entry *domain.EntryState, _ *domain.Position, s domain.MarketSnapshot, _ time.Time) (domain.ExitDecision, bool) {
	var entryDev float64
	switch {
	case entry.Deviation != nil:
		entryDev = *entry.Deviation
	case entry.MidPrice != nil:
		entryDev = meanReversionTarget - *entry.MidPrice
	default:
		return abstain()
	}

	mid := s.MidOrDefault()
	dev := meanReversionTarget - mid
	threshold := math.Max(0.01, math.Abs(entryDev)*meanReversionSlackRatio)

	if math.Abs(dev) <= threshold {
		return closeDecision("mean_reversion_target", domain.Metadata{
			"current_mid":       mid,
			"current_deviation": dev,
			"threshold":         threshold,
		})
	}
	if math.Abs(dev) >= math.Abs(entryDev)*meanReversionStopMult {
		return closeDecision("mean_reversion_stop", domain.Metadata{
			"current_mid":       mid,
			"current_deviation": dev,
			"stop_multiplier":   meanReversionStopMult,
		})
	}
	return abstain()
}

package exits

import (
	"math"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/strategy"
)

const momentumDecayRatio = 0.35

// Momentum cierra ante reversión del momentum 24h, un cambio 1h en contra o
// cuando el momentum cae al 35% del de entrada.
type Momentum struct{}

func (Momentum) Name() string { return strategy.MomentumName }

func (Momentum) Capture(c domain.Contribution) *domain.EntryState {
	return &domain.EntryState{
		Bias:     ptr(c.Bias),
		Momentum: metaFloat(c.Metadata, "momentum"),
	}
}

func (Momentum) Evaluate(entry *domain.EntryState, _ *domain.Position, s domain.MarketSnapshot, _ time.Time) (domain.ExitDecision, bool) {
	if entry.Momentum == nil {
		return abstain()
	}
	em := *entry.Momentum

	// un 0 en price_change_24h cae a momentum
	var cur float64
	switch {
	case s.PriceChange24h != nil && *s.PriceChange24h != 0:
		cur = *s.PriceChange24h
	case s.Momentum != nil:
		cur = *s.Momentum
	default:
		return abstain()
	}

	if (em > 0 && cur <= 0) || (em < 0 && cur >= 0) {
		return closeDecision("momentum_reversal", domain.Metadata{"current_momentum": cur})
	}
	if h := s.PriceChange1h; h != nil {
		if (em > 0 && *h < 0) || (em < 0 && *h > 0) {
			return closeDecision("momentum_1h_reversal", domain.Metadata{"one_hour_change": *h})
		}
	}
	if math.Abs(cur) <= math.Abs(em)*momentumDecayRatio {
		return closeDecision("momentum_decay", domain.Metadata{
			"current_momentum": cur,
			"decay_ratio":      momentumDecayRatio,
		})
	}
	return abstain()
}

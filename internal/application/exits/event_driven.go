package exits

import (
	"math"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/strategy"
)

const (
	sentimentDecayRatio    = 0.25
	volumeDecayRatio       = 0.4
	defaultHoldSeconds     = 900
	holdWindowSpike        = 0.6
	holdToResolutionSpike  = 0.9
	defaultTrailingTrigger = 0.045
	defaultTrailingDecay   = 0.02
)

// EventDriven mantiene hasta resolución con spikes fuertes; si no, cierra por
// reversión o decaimiento del sentiment, caída del volumen o trailing stop,
// respetando una ventana mínima de hold.
type EventDriven struct{}

func (EventDriven) Name() string { return strategy.EventDrivenName }

func (EventDriven) Capture(c domain.Contribution) *domain.EntryState {
	md := c.Metadata
	e := &domain.EntryState{
		Bias:            ptr(c.Bias),
		Sentiment:       metaFloat(md, "sentiment"),
		Volume:          metaFloat(md, "volume"),
		Spike:           metaFloat(md, "spike"),
		TrailingTrigger: defaultTrailingTrigger,
		TrailingDecay:   defaultTrailingDecay,
	}

	if hold, ok := md.Float("hold_seconds"); ok && hold > 0 {
		e.HoldSeconds = int(hold)
	} else if e.Spike != nil && *e.Spike >= holdWindowSpike {
		e.HoldSeconds = defaultHoldSeconds
		if d, ok := md.Float("expected_duration_seconds"); ok {
			e.HoldSeconds = int(d)
		}
	}

	if _, set := md["hold_to_resolution"]; set {
		e.HoldToResolution = md.Bool("hold_to_resolution")
	} else if e.Spike != nil && *e.Spike >= holdToResolutionSpike {
		e.HoldToResolution = true
	}

	if v, ok := md.Float("trailing_trigger_pct"); ok {
		e.TrailingTrigger = v
	}
	if v, ok := md.Float("trailing_decay_pct"); ok {
		e.TrailingDecay = v
	}
	return e
}

func (EventDriven) Evaluate(entry *domain.EntryState, pos *domain.Position, s domain.MarketSnapshot, now time.Time) (domain.ExitDecision, bool) {
	if entry.HoldToResolution && !s.Resolved {
		return holdDecision("event_hold_to_resolution", domain.Metadata{"hold_to_resolution": true})
	}

	if entry.Sentiment != nil {
		if cur, ok := s.CurrentSentiment(); ok {
			es := *entry.Sentiment
			if (es > 0 && cur <= 0) || (es < 0 && cur >= 0) {
				return closeDecision("event_sentiment_reversal", domain.Metadata{"current_sentiment": cur})
			}
			if math.Abs(cur) <= math.Abs(es)*sentimentDecayRatio {
				return closeDecision("event_sentiment_decay", domain.Metadata{
					"current_sentiment": cur,
					"decay_ratio":       sentimentDecayRatio,
				})
			}
		}
	}

	if entry.Volume != nil && *entry.Volume != 0 && s.Volume24h != nil {
		if *s.Volume24h <= *entry.Volume*volumeDecayRatio {
			return closeDecision("event_volume_fade", domain.Metadata{
				"current_volume": *s.Volume24h,
				"entry_volume":   *entry.Volume,
				"decay_ratio":    volumeDecayRatio,
			})
		}
	}

	if entry.HoldSeconds > 0 && !pos.OpenedAt.IsZero() {
		remaining := float64(entry.HoldSeconds) - now.Sub(pos.OpenedAt).Seconds()
		if remaining > 0 {
			return holdDecision("event_hold_window", domain.Metadata{
				"hold_seconds":      entry.HoldSeconds,
				"remaining_seconds": remaining,
			})
		}
	}

	cur, ok := pos.PnLPct(s)
	if !ok {
		return abstain()
	}
	best := math.Max(entry.BestPnLPct, cur)
	entry.BestPnLPct = best
	if best > pos.BestPnLPct {
		pos.BestPnLPct = best
	}
	trigger := entry.TrailingTrigger
	if trigger == 0 {
		trigger = defaultTrailingTrigger
	}
	decay := entry.TrailingDecay
	if decay == 0 {
		decay = defaultTrailingDecay
	}
	if best >= trigger && best-cur >= decay {
		return closeDecision("event_trailing_stop", domain.Metadata{
			"best_pnl_pct":       best,
			"current_pnl_pct":    cur,
			"trailing_decay_pct": decay,
		})
	}
	return abstain()
}

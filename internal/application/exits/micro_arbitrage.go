package exits

import (
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/strategy"
)

const (
	modeInternal       = "internal"
	modeExternal       = "external"
	defaultExitTaker   = 0.003
	reentryGuardFactor = 0.5
)

// MicroArbitrage cierra cuando el edge que justificó la entrada desaparece.
// Interno: edge vs el mercado de referencia por debajo de la mitad del
// threshold, o referencia ausente. Externo: (externo - local) - fee <= 0.
type MicroArbitrage struct{}

func (MicroArbitrage) Name() string { return strategy.MicroArbitrageName }

func (MicroArbitrage) Capture(c domain.Contribution) *domain.EntryState {
	md := c.Metadata
	ref := md.String("reference_market_id")
	if ref == "" {
		ref = md.String("reference_condition_id")
	}
	dir := domain.ActionYes
	if c.Bias < 0 {
		dir = domain.ActionNo
	}
	mode := md.String("mode")
	if mode == "" {
		mode = modeInternal
	}
	return &domain.EntryState{
		Bias:              ptr(c.Bias),
		ReferenceMarketID: ref,
		Direction:         dir,
		Edge:              metaFloat(md, "edge"),
		Threshold:         metaFloat(md, "internal_edge_threshold"),
		Mode:              mode,
		TakerFee:          metaFloat(md, "taker_fee"),
	}
}

func (MicroArbitrage) Evaluate(entry *domain.EntryState, pos *domain.Position, s domain.MarketSnapshot, _ time.Time) (domain.ExitDecision, bool) {
	dir := entry.Direction
	if dir == "" && pos != nil {
		dir = pos.Side
	}
	if strings.EqualFold(entry.Mode, modeExternal) {
		return evaluateExternal(entry, dir, s)
	}
	return evaluateInternal(entry, dir, s)
}

func evaluateExternal(entry *domain.EntryState, dir domain.Action, s domain.MarketSnapshot) (domain.ExitDecision, bool) {
	bid, ask, ok := s.Quotes()
	if !ok || s.ExternalBid == nil || s.ExternalAsk == nil {
		return abstain()
	}
	extBid, extAsk := *s.ExternalBid, *s.ExternalAsk
	fee := defaultExitTaker
	if entry.TakerFee != nil {
		fee = *entry.TakerFee
	}
	fee = math.Max(0, fee)

	edge := (extBid - ask) - fee
	if dir == domain.ActionNo {
		edge = (bid - extAsk) - fee
	}
	if edge > 0 {
		return abstain()
	}
	return closeDecision("micro_arbitrage_external_edge_cost", domain.Metadata{
		"current_edge": edge,
		"taker_fee":    fee,
		"external_bid": extBid,
		"external_ask": extAsk,
		"local_bid":    bid,
		"local_ask":    ask,
	})
}

func evaluateInternal(entry *domain.EntryState, dir domain.Action, s domain.MarketSnapshot) (domain.ExitDecision, bool) {
	if entry.ReferenceMarketID == "" {
		return abstain()
	}
	ref, found := s.FindReference(entry.ReferenceMarketID)
	if !found {
		return closeDecision("micro_arbitrage_ref_missing", domain.Metadata{
			"reference_market_id": entry.ReferenceMarketID,
		})
	}
	if ref.YesPrice == nil || (s.Bid == nil && s.Ask == nil) {
		return abstain()
	}
	refPrice := *ref.YesPrice

	threshold := 0.0
	if entry.Threshold != nil {
		threshold = *entry.Threshold
	}
	guard := math.Max(0, threshold*reentryGuardFactor)

	var edge float64
	if dir == domain.ActionNo {
		mark := s.MidOrDefault()
		if s.Bid != nil {
			mark = *s.Bid
		}
		edge = mark - refPrice
	} else {
		mark := s.MidOrDefault()
		if s.Ask != nil {
			mark = *s.Ask
		}
		edge = refPrice - mark
	}
	if edge > guard {
		return abstain()
	}
	return closeDecision("micro_arbitrage_edge_reverted", domain.Metadata{
		"current_edge":        edge,
		"reference_market_id": ref.MarketID,
		"threshold":           threshold,
	})
}

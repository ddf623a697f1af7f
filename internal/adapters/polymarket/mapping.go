package polymarket

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// mapGammaMarket convierte un mercado de Gamma a snapshot. ok=false si el
// mercado no es binario o le faltan los token ids.
func mapGammaMarket(gm gammaMarket, now time.Time) (domain.MarketSnapshot, bool) {
	if gm.ConditionID == "" || len(gm.ClobTokenIDs) != 2 {
		return domain.MarketSnapshot{}, false
	}
	yes, no := outcomeIndexes(gm.Outcomes)

	s := domain.MarketSnapshot{
		MarketID:       gm.ConditionID,
		Question:       gm.Question,
		YesToken:       gm.ClobTokenIDs[yes],
		NoToken:        gm.ClobTokenIDs[no],
		NegRisk:        gm.NegRisk,
		Bid:            positive(gm.BestBid),
		Ask:            positive(gm.BestAsk),
		Spread:         gm.Spread.ptr(),
		Volume24h:      gm.Volume24h.ptr(),
		Liquidity:      gm.Liquidity.ptr(),
		PriceChange1h:  gm.OneHourPriceChange.ptr(),
		PriceChange24h: gm.OneDayPriceChange.ptr(),
		Resolved:       gm.Closed,
		Active:         domain.Bool(gm.Active),
		CapturedAt:     now,
	}
	if gm.AcceptingOrders != nil {
		s.AcceptingOrders = domain.Bool(*gm.AcceptingOrders)
	}
	if yes < len(gm.OutcomePrices) {
		if p, ok := parseDecimal(gm.OutcomePrices[yes]); ok {
			s.YesPrice = domain.Float(p)
		}
	}
	return s, true
}

// outcomeIndexes devuelve la posición de "Yes" y "No". Sin etiquetas
// reconocibles asume el orden de Gamma: [Yes, No].
func outcomeIndexes(outcomes []string) (yes, no int) {
	if len(outcomes) == 2 && strings.EqualFold(outcomes[0], "no") && strings.EqualFold(outcomes[1], "yes") {
		return 1, 0
	}
	return 0, 1
}

func positive(f optFloat) *float64 {
	if !f.OK || f.V <= 0 {
		return nil
	}
	return domain.Float(f.V)
}

// referenceFor construye el mercado de referencia que ven los hermanos de evento.
func referenceFor(s domain.MarketSnapshot) domain.ReferenceMarket {
	ref := domain.ReferenceMarket{
		MarketID:    s.MarketID,
		ConditionID: s.MarketID,
		Volume24h:   s.Volume24h,
	}
	if mid, ok := s.Mid(); ok {
		ref.YesPrice = domain.Float(mid)
	}
	return ref
}

// applyBooks sobreescribe bid/ask con el book del token YES y calcula la
// liquidez (shares) comprable de cada lado dentro de depth.
func applyBooks(s *domain.MarketSnapshot, books map[string]domain.OrderBook, depth float64) {
	if yb, ok := books[s.YesToken]; ok {
		if bid, ask := yb.BestBid(), yb.BestAsk(); bid > 0 && ask > 0 {
			s.Bid = domain.Float(bid)
			s.Ask = domain.Float(ask)
			s.Spread = domain.Float(domain.Round6(ask - bid))
		}
		s.LiquidityYes = domain.Float(yb.AskSharesWithin(depth))
	}
	if nb, ok := books[s.NoToken]; ok {
		s.LiquidityNo = domain.Float(nb.AskSharesWithin(depth))
	}
}

// mapOrderBooks convierte la respuesta batch de /books a tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries descarta niveles vacíos y ordena.
// ascending=true → asks, ascending=false → bids.
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, okP := parseDecimal(r.Price)
		size, okS := parseDecimal(r.Size)
		if !okP || !okS || price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})
	return entries
}

// mapVenueOrder convierte GET /data/order al estado del venue.
func mapVenueOrder(o clobOrder) domain.VenueOrder {
	price, _ := parseDecimal(o.Price)
	size, _ := parseDecimal(o.OriginalSize)
	matched, _ := parseDecimal(o.SizeMatched)
	return domain.VenueOrder{
		VenueOrderID: o.ID,
		MarketID:     o.Market,
		TokenID:      o.AssetID,
		Side:         domain.OrderSide(strings.ToUpper(o.Side)),
		Price:        price,
		OriginalSize: size,
		SizeMatched:  matched,
		Status:       normaliseStatus(o.Status),
	}
}

// normaliseStatus quita el prefijo ORDER_STATUS_ que usan algunas respuestas.
func normaliseStatus(s string) string {
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ORDER_STATUS_")
}

// parseDecimal lee un número decimal en string. "" → ok=false.
func parseDecimal(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

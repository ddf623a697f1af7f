package domain

import (
	"math"
	"strings"
	"time"
)

// MarketSnapshot es la vista de solo lectura de un mercado binario en un tick.
// Los campos opcionales son punteros: nil significa "no informado", que no es
// lo mismo que cero.
type MarketSnapshot struct {
	MarketID  string `json:"market_id"`
	Question  string `json:"question,omitempty"`
	YesToken  string `json:"yes_token_id,omitempty"`
	NoToken   string `json:"no_token_id,omitempty"`
	NegRisk   bool   `json:"neg_risk,omitempty"`
	RiskLevel string `json:"risk_level,omitempty"`

	Bid      *float64 `json:"bid,omitempty"`
	Ask      *float64 `json:"ask,omitempty"`
	MidPrice *float64 `json:"mid_price,omitempty"`
	YesPrice *float64 `json:"yes_price,omitempty"`
	Spread   *float64 `json:"spread,omitempty"`

	Volume24h      *float64 `json:"volume_24h,omitempty"`
	Volatility     *float64 `json:"volatility,omitempty"`
	Volatility24h  *float64 `json:"volatility_24h,omitempty"`
	Volatility1h   *float64 `json:"volatility_1h,omitempty"`
	ATR            *float64 `json:"atr,omitempty"`
	PriceChange1h  *float64 `json:"price_change_1h,omitempty"`
	PriceChange24h *float64 `json:"price_change_24h,omitempty"`
	Momentum       *float64 `json:"momentum,omitempty"`

	Liquidity    *float64 `json:"liquidity,omitempty"`
	LiquidityYes *float64 `json:"liquidity_yes,omitempty"`
	LiquidityNo  *float64 `json:"liquidity_no,omitempty"`

	NewsSentiment       *float64   `json:"news_sentiment,omitempty"`
	Sentiment           *float64   `json:"sentiment,omitempty"`
	SentimentSource     string     `json:"sentiment_source,omitempty"`
	SentimentConfidence *float64   `json:"sentiment_confidence,omitempty"`
	SentimentUpdatedAt  *time.Time `json:"sentiment_updated_at,omitempty"`
	// SentimentAge is used instead of SentimentUpdatedAt when the provider
	// reports the age directly.
	SentimentAge *time.Duration `json:"sentiment_age,omitempty"`

	ExternalBid  *float64 `json:"external_bid,omitempty"`
	ExternalAsk  *float64 `json:"external_ask,omitempty"`
	ExternalReal bool     `json:"external_real,omitempty"`

	InternalRefs []ReferenceMarket `json:"internal_micro_refs,omitempty"`

	Resolved        bool  `json:"resolved,omitempty"`
	Active          *bool `json:"active,omitempty"`
	AcceptingOrders *bool `json:"accepting_orders,omitempty"`

	CapturedAt time.Time `json:"captured_at"`
}

// ReferenceMarket es un mercado correlacionado usado por micro-arbitraje interno.
type ReferenceMarket struct {
	MarketID    string   `json:"market_id"`
	ConditionID string   `json:"condition_id,omitempty"`
	YesPrice    *float64 `json:"yes_price,omitempty"`
	Volume24h   *float64 `json:"volume_24h,omitempty"`
}

// Float devuelve un puntero a v. Atajo para construir snapshots.
func Float(v float64) *float64 { return &v }

// Bool devuelve un puntero a v.
func Bool(v bool) *bool { return &v }

// Quotes devuelve bid y ask solo si ambos están presentes.
func (s MarketSnapshot) Quotes() (bid, ask float64, ok bool) {
	if s.Bid == nil || s.Ask == nil {
		return 0, 0, false
	}
	return *s.Bid, *s.Ask, true
}

// Mid devuelve el midpoint: (bid+ask)/2 si hay quotes, luego mid_price y
// yes_price. ok=false si no hay ningún precio.
func (s MarketSnapshot) Mid() (float64, bool) {
	if bid, ask, ok := s.Quotes(); ok {
		return (bid + ask) / 2, true
	}
	if s.MidPrice != nil {
		return *s.MidPrice, true
	}
	if s.YesPrice != nil {
		return *s.YesPrice, true
	}
	return 0, false
}

// MidOrDefault es Mid con fallback a 0.5.
func (s MarketSnapshot) MidOrDefault() float64 {
	if m, ok := s.Mid(); ok {
		return m
	}
	return 0.5
}

// VolatilityRef devuelve la primera volatilidad positiva en orden
// volatility, volatility_24h, volatility_1h, atr. 0 si ninguna lo es.
func (s MarketSnapshot) VolatilityRef() float64 {
	for _, v := range []*float64{s.Volatility, s.Volatility24h, s.Volatility1h, s.ATR} {
		if v == nil {
			continue
		}
		if abs := math.Abs(*v); abs > 0 {
			return abs
		}
	}
	return 0
}

// QuotedSpread devuelve ask-bid, o el campo spread si faltan quotes.
func (s MarketSnapshot) QuotedSpread() (float64, bool) {
	if bid, ask, ok := s.Quotes(); ok {
		return ask - bid, true
	}
	if s.Spread != nil {
		return *s.Spread, true
	}
	return 0, false
}

// CurrentSentiment prefers news sentiment over the generic field.
func (s MarketSnapshot) CurrentSentiment() (float64, bool) {
	if s.NewsSentiment != nil {
		return *s.NewsSentiment, true
	}
	if s.Sentiment != nil {
		return *s.Sentiment, true
	}
	return 0, false
}

// SentimentAgeAt returns how old the sentiment reading is at now.
func (s MarketSnapshot) SentimentAgeAt(now time.Time) (time.Duration, bool) {
	if s.SentimentAge != nil {
		if *s.SentimentAge < 0 {
			return 0, true
		}
		return *s.SentimentAge, true
	}
	if s.SentimentUpdatedAt == nil {
		return 0, false
	}
	age := now.Sub(*s.SentimentUpdatedAt)
	if age < 0 {
		age = 0
	}
	return age, true
}

// LocalLiquidity returns the first liquidity figure available.
func (s MarketSnapshot) LocalLiquidity() (float64, bool) {
	for _, v := range []*float64{s.LiquidityYes, s.LiquidityNo, s.Liquidity} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// FindReference busca un mercado de referencia por market_id o condition_id
// (case-insensitive).
func (s MarketSnapshot) FindReference(id string) (ReferenceMarket, bool) {
	if id == "" {
		return ReferenceMarket{}, false
	}
	for _, ref := range s.InternalRefs {
		if equalFold(ref.MarketID, id) || equalFold(ref.ConditionID, id) {
			return ref, true
		}
	}
	return ReferenceMarket{}, false
}

func equalFold(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen caracteres.
// Si la pregunta está vacía usa el marketID como fallback.
func TruncateQuestion(question, marketID string, maxLen int) string {
	q := question
	if q == "" {
		if len(marketID) > 20 {
			q = marketID[:20] + "..."
		} else {
			q = marketID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}

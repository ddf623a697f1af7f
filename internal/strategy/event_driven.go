package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// EventDrivenName es el nombre registrado de la estrategia.
const EventDrivenName = "event_driven"

// authoritativeSources son las fuentes de sentimiento reales (noticias y redes).
// Cualquier otra fuente se considera sintética.
var authoritativeSources = mapset.NewThreadUnsafeSet(
	"news", "newsapi", "gnews", "ap", "reuters", "bloomberg", "ft", "guardian",
	"social", "twitter", "x", "reddit",
)

// EventDrivenParams configura EventDriven.
type EventDrivenParams struct {
	Filters `yaml:",inline"`

	VolumeThreshold              float64 `yaml:"volume_threshold"`
	SentimentWeight              float64 `yaml:"sentiment_weight"`
	SentimentFloor               float64 `yaml:"sentiment_floor"`
	VolumeSpikeMultiplierNonNews float64 `yaml:"volume_spike_multiplier_non_news"`
	RequireTrueSource            bool    `yaml:"require_true_source"`
	NonNewsConfScale             float64 `yaml:"non_news_conf_scale"`
	MaxAgeSeconds                float64 `yaml:"max_age_seconds"`
	DecayHalfLifeSeconds         float64 `yaml:"decay_half_life_seconds"`
}

// DefaultEventDrivenParams devuelve los parámetros por defecto.
func DefaultEventDrivenParams() EventDrivenParams {
	return EventDrivenParams{
		VolumeThreshold:              5000,
		SentimentWeight:              0.6,
		SentimentFloor:               0.05,
		VolumeSpikeMultiplierNonNews: 1.5,
		NonNewsConfScale:             0.7,
		MaxAgeSeconds:                1800,
		DecayHalfLifeSeconds:         900,
	}
}

// EventDriven combina sentimiento y picos de volumen. Sus decisiones son
// exclusivas: cuando emite, el engine ignora al resto.
type EventDriven struct {
	p   EventDrivenParams
	now func() time.Time
}

// NewEventDriven es la Factory de event_driven.
func NewEventDriven(raw Params, defaults Filters) (Strategy, error) {
	p := DefaultEventDrivenParams()
	p.Filters = defaults
	if err := decodeParams(raw, &p); err != nil {
		return nil, fmt.Errorf("event_driven: %w", err)
	}
	return NewEventDrivenWith(p), nil
}

// NewEventDrivenWith construye la estrategia con parámetros ya tipados.
func NewEventDrivenWith(p EventDrivenParams) *EventDriven {
	return &EventDriven{p: p, now: time.Now}
}

// Name implementa Strategy.
func (e *EventDriven) Name() string { return EventDrivenName }

// Evaluate implementa Strategy.
func (e *EventDriven) Evaluate(s domain.MarketSnapshot) (domain.StrategyDecision, bool) {
	if !e.p.Admit(s) {
		return domain.StrategyDecision{}, false
	}
	sentiment, _ := s.CurrentSentiment()
	volume := 0.0
	if s.Volume24h != nil {
		volume = *s.Volume24h
	}
	spike := math.Max(0, (volume-e.p.VolumeThreshold)/math.Max(e.p.VolumeThreshold, 1e-6))
	if math.Abs(sentiment) < e.p.SentimentFloor && spike <= 0 {
		return domain.StrategyDecision{}, false
	}

	source := strings.ToLower(s.SentimentSource)
	synthetic := !authoritativeSources.Contains(source)
	if synthetic && e.p.RequireTrueSource {
		return domain.StrategyDecision{}, false
	}

	// Las fuentes sintéticas necesitan un pico visible, que además pesa más.
	spikeEff := spike
	if synthetic {
		if spikeEff <= 0 {
			return domain.StrategyDecision{}, false
		}
		spikeEff *= math.Max(1, e.p.VolumeSpikeMultiplierNonNews)
	}
	volumeBias := 0.0
	if spikeEff > 0 && math.Abs(sentiment) >= e.p.SentimentFloor {
		volumeBias = spikeEff
		if sentiment < 0 {
			volumeBias = -spikeEff
		}
	}

	score := e.p.SentimentWeight*sentiment + (1-e.p.SentimentWeight)*volumeBias
	if math.Abs(score) <= 1e-6 {
		return domain.StrategyDecision{}, false
	}

	confScale := 1.0
	if s.SentimentConfidence != nil {
		confScale = *s.SentimentConfidence
	}
	confScale = domain.Clamp(confScale, 0.2, 1)
	if synthetic {
		confScale *= domain.Clamp(e.p.NonNewsConfScale, 0, 1)
	}
	conf := domain.Clamp(math.Max(math.Abs(sentiment), math.Abs(volumeBias))*confScale, 0, 1)

	var ageSeconds *float64
	if age, ok := s.SentimentAgeAt(e.now()); ok {
		secs := age.Seconds()
		ageSeconds = &secs
		if e.p.MaxAgeSeconds > 0 && secs > e.p.MaxAgeSeconds {
			return domain.StrategyDecision{}, false
		}
		if e.p.DecayHalfLifeSeconds > 0 {
			decay := math.Pow(0.5, secs/e.p.DecayHalfLifeSeconds)
			conf *= decay
			score *= decay
		}
	}
	if conf < e.p.MinConfidence {
		return domain.StrategyDecision{}, false
	}

	md := domain.Metadata{
		"sentiment":                 sentiment,
		"volume":                    volume,
		"spike":                     spike,
		"spike_effective":           spikeEff,
		"exclusive":                 true,
		"decay_half_life":           e.p.DecayHalfLifeSeconds,
		"sentiment_source":          source,
		"expected_duration_seconds": int(600 + domain.Clamp(spike, 0, 1)*1800),
	}
	if ageSeconds != nil {
		md["age_seconds"] = *ageSeconds
	}
	if s.SentimentConfidence != nil {
		md["sentiment_confidence"] = *s.SentimentConfidence
	}
	return domain.StrategyDecision{
		Bias:       domain.Clamp(score, -1, 1),
		Confidence: conf,
		SizeHint:   math.Min(1, 0.35+conf+math.Min(spikeEff, 1)*0.3),
		Reason:     fmt.Sprintf("sentiment=%.3f, volume=%.0f, spike=%.3f", sentiment, volume, spike),
		Metadata:   md,
	}.Clamp(), true
}

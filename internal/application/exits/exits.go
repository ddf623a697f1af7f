// Package exits decide si cerrar o mantener una posición abierta. Hay un
// evaluador por estrategia: al abrir la posición captura el contexto de
// entrada y en cada tick devuelve close, hold o nada.
package exits

import (
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// Evaluator es el evaluador de salida de una estrategia.
type Evaluator interface {
	// Name es el nombre de la estrategia a la que corresponde.
	Name() string
	// Capture extrae el contexto de entrada de la contribución de la estrategia.
	Capture(c domain.Contribution) *domain.EntryState
	// Evaluate devuelve ok=false cuando no tiene opinión.
	Evaluate(entry *domain.EntryState, pos *domain.Position, s domain.MarketSnapshot, now time.Time) (domain.ExitDecision, bool)
}

// Verdict es la decisión de una estrategia sobre una posición.
type Verdict struct {
	Strategy  string
	Exclusive bool
	Decision  domain.ExitDecision
}

// Outcome agrupa las decisiones de todos los evaluadores para una posición.
type Outcome struct {
	Close     *Verdict  // close elegido; las estrategias exclusivas tienen prioridad
	Holds     []Verdict // holds todavía activos
	Decisions []Verdict
}

// ShouldClose es true si hay un close y ningún hold activo lo bloquea.
func (o Outcome) ShouldClose() bool {
	return o.Close != nil && len(o.Holds) == 0
}

// Set es el registro de evaluadores por nombre de estrategia.
type Set struct {
	evaluators map[string]Evaluator
}

// NewSet crea un Set con los evaluadores dados.
func NewSet(evs ...Evaluator) *Set {
	s := &Set{evaluators: make(map[string]Evaluator, len(evs))}
	for _, ev := range evs {
		s.evaluators[ev.Name()] = ev
	}
	return s
}

// DefaultSet incluye los cuatro evaluadores built-in.
func DefaultSet() *Set {
	return NewSet(MeanReversion{}, Momentum{}, MicroArbitrage{}, EventDriven{})
}

// Get devuelve el evaluador de una estrategia.
func (s *Set) Get(name string) (Evaluator, bool) {
	ev, ok := s.evaluators[name]
	return ev, ok
}

// Capture registra en pos el contexto de entrada de cada estrategia que
// contribuyó. Se llama una sola vez, al abrir la posición.
func (s *Set) Capture(pos *domain.Position, contributions []domain.Contribution) {
	if pos.Strategies == nil {
		pos.Strategies = make(map[string]*domain.EntryState, len(contributions))
	}
	for _, c := range contributions {
		ev, ok := s.evaluators[c.Name]
		if !ok {
			continue
		}
		entry := ev.Capture(c)
		entry.Exclusive = c.Exclusive
		pos.Strategies[c.Name] = entry
	}
}

// Evaluate corre todos los evaluadores con contexto capturado en pos y elige
// el close a ejecutar. pos puede mutar (best PnL del trailing stop).
func (s *Set) Evaluate(pos *domain.Position, snap domain.MarketSnapshot, now time.Time) Outcome {
	names := make([]string, 0, len(pos.Strategies))
	for name := range pos.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	var out Outcome
	priority := -1
	for _, name := range names {
		ev, ok := s.evaluators[name]
		if !ok {
			continue
		}
		entry := pos.Strategies[name]
		if entry == nil {
			continue
		}
		d, ok := ev.Evaluate(entry, pos, snap, now)
		if !ok {
			continue
		}
		v := Verdict{Strategy: name, Exclusive: entry.Exclusive, Decision: d}
		out.Decisions = append(out.Decisions, v)

		switch d.Action {
		case domain.ExitClose:
			p := 1
			if v.Exclusive {
				p = 2
			}
			if p > priority {
				priority = p
				chosen := v
				out.Close = &chosen
			}
		case domain.ExitHold:
			if holdActive(d, pos, now) {
				out.Holds = append(out.Holds, v)
			}
		}
	}
	if out.Close != nil && len(out.Holds) > 0 {
		slog.Debug("exits: close suppressed by hold", "market", pos.MarketID,
			"close", out.Close.Decision.Reason, "hold", out.Holds[0].Decision.Reason)
	}
	return out
}

// holdActive decide si un hold sigue vigente. Sin información de ventana el
// hold vale para esta evaluación.
func holdActive(d domain.ExitDecision, pos *domain.Position, now time.Time) bool {
	if d.Metadata.Bool("hold_to_resolution") {
		return true
	}
	if remaining, ok := d.Metadata.Float("remaining_seconds"); ok {
		return remaining > 0
	}
	if hold, ok := d.Metadata.Float("hold_seconds"); ok && hold > 0 && !pos.OpenedAt.IsZero() {
		return now.Sub(pos.OpenedAt).Seconds() < hold
	}
	return true
}

// --- helpers ---

func ptr(v float64) *float64 { return &v }

// metaFloat lee un número opcional de la metadata de una contribución.
func metaFloat(md domain.Metadata, key string) *float64 {
	if v, ok := md.Float(key); ok {
		return ptr(v)
	}
	return nil
}

func closeDecision(reason string, md domain.Metadata) (domain.ExitDecision, bool) {
	return domain.ExitDecision{Action: domain.ExitClose, Reason: reason, Metadata: md}, true
}

func holdDecision(reason string, md domain.Metadata) (domain.ExitDecision, bool) {
	return domain.ExitDecision{Action: domain.ExitHold, Reason: reason, Metadata: md}, true
}

func abstain() (domain.ExitDecision, bool) {
	return domain.ExitDecision{}, false
}

package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// ErrUnknownStrategy se devuelve cuando no hay factory registrada para un nombre.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy define el contrato de una señal de trading.
// Evaluate devuelve false cuando la estrategia se abstiene para ese snapshot;
// abstenerse nunca es un error.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// Evaluate lee el snapshot y devuelve una decisión ya clampeada.
	Evaluate(s domain.MarketSnapshot) (domain.StrategyDecision, bool)
}

// Params son los parámetros crudos de una estrategia tal como vienen del YAML.
type Params map[string]any

// Factory construye una estrategia. defaults son los filtros globales, que los
// params de la estrategia pueden sobreescribir.
type Factory func(p Params, defaults Filters) (Strategy, error)

// Registry mantiene las factories disponibles indexadas por nombre.
type Registry map[string]Factory

// NewRegistry crea un registry vacío.
func NewRegistry() Registry {
	return make(Registry)
}

// DefaultRegistry registra las cuatro estrategias incluidas.
func DefaultRegistry() Registry {
	r := NewRegistry()
	r.Register(MeanReversionName, NewMeanReversion)
	r.Register(MomentumName, NewMomentum)
	r.Register(EventDrivenName, NewEventDriven)
	r.Register(MicroArbitrageName, NewMicroArbitrage)
	return r
}

// Register añade una factory al registry.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// Get devuelve la factory por nombre.
func (r Registry) Get(name string) (Factory, bool) {
	f, ok := r[name]
	return f, ok
}

// New construye la estrategia name.
func (r Registry) New(name string, p Params, defaults Filters) (Strategy, error) {
	f, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.New: %q: %w", name, ErrUnknownStrategy)
	}
	s, err := f(p, defaults)
	if err != nil {
		return nil, fmt.Errorf("strategy.New: %q: %w", name, err)
	}
	return s, nil
}

// Config es la configuración de una estrategia.
type Config struct {
	Enabled   bool
	Weight    float64
	Exclusive bool
	// SignalFloor / ConsensusMin sobreescriben los umbrales globales del
	// engine cuando esta estrategia es la contribución exclusiva.
	SignalFloor  *float64
	ConsensusMin *int
	Params       Params
}

// Spec es una estrategia construida lista para el engine.
type Spec struct {
	Name          string
	Weight        float64
	MinConfidence float64
	Exclusive     bool
	SignalFloor   *float64
	ConsensusMin  *int
	Strategy      Strategy
}

// Build construye las estrategias habilitadas con peso positivo, ordenadas por
// nombre. Los nombres desconocidos se saltan con un warning.
func (r Registry) Build(configs map[string]Config, defaults Filters) ([]Spec, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		cfg := configs[name]
		if !cfg.Enabled || cfg.Weight <= 0 {
			continue
		}
		s, err := r.New(name, cfg.Params, defaults)
		if errors.Is(err, ErrUnknownStrategy) {
			slog.Warn("strategy: unknown strategy, skipping", "name", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("strategy.Build: %w", err)
		}
		minConf, _ := domain.Metadata(cfg.Params).Float("min_confidence")
		exclusive := cfg.Exclusive || domain.Metadata(cfg.Params).Bool("exclusive")
		specs = append(specs, Spec{
			Name:          name,
			Weight:        cfg.Weight,
			MinConfidence: minConf,
			Exclusive:     exclusive,
			SignalFloor:   cfg.SignalFloor,
			ConsensusMin:  cfg.ConsensusMin,
			Strategy:      s,
		})
	}
	return specs, nil
}

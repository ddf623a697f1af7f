package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Errores de validación. Load los devuelve envueltos.
var (
	ErrInvalidMode          = errors.New("invalid execution mode")
	ErrInvalidSlippageModel = errors.New("invalid slippage model")
	ErrInvalidRatio         = errors.New("ratio out of range")
	ErrInvalidLogFormat     = errors.New("invalid log format")
)

// Config es la configuración completa del trader.
type Config struct {
	Trading    TradingConfig            `yaml:"trading"`
	Execution  ExecutionConfig          `yaml:"execution"`
	Risk       RiskConfig               `yaml:"risk"`
	Strategy   StrategyConfig           `yaml:"strategy"`
	Strategies map[string]StrategyEntry `yaml:"strategies"`
	Fees       FeesConfig               `yaml:"fees"`
	Runner     RunnerConfig             `yaml:"runner"`
	Snapshots  SnapshotsConfig          `yaml:"snapshots"`
	API        APIConfig                `yaml:"api"`
	Storage    StorageConfig            `yaml:"storage"`
	Log        LogConfig                `yaml:"log"`

	// Secretos: solo desde el entorno, nunca del YAML.
	PrivateKey string `yaml:"-"`
	RPCURL     string `yaml:"-"`
}

// TradingConfig controla el sizing.
type TradingConfig struct {
	InitialBalance    float64 `yaml:"initial_balance"`
	MaxSinglePosition float64 `yaml:"max_single_position"` // fracción del balance
	MinPositionSize   float64 `yaml:"min_position_size"`
}

// ExecutionConfig controla cómo se ejecutan las órdenes.
type ExecutionConfig struct {
	Mode          string      `yaml:"mode"`           // offline | dry-run | read-only | live
	SlippageModel string      `yaml:"slippage_model"` // taker | maker | maker_limit | mid
	Costs         CostsConfig `yaml:"costs"`
}

// CostsConfig son los fees por defecto y la prima de riesgo sobre el edge.
type CostsConfig struct {
	TakerFee        float64 `yaml:"taker_fee"`
	MakerFee        float64 `yaml:"maker_fee"`
	EdgeRiskPremium float64 `yaml:"edge_risk_premium"`
}

// RiskConfig controla el risk engine.
type RiskConfig struct {
	VolatilityRiskCeiling float64 `yaml:"volatility_risk_ceiling"`
	MaxVaRRatio           float64 `yaml:"max_var_ratio"`
	MaxSingleOrderRatio   float64 `yaml:"max_single_order_ratio"`
	VaRLookback           int     `yaml:"var_lookback"`
}

// StrategyConfig son los umbrales de agregación y los filtros de admisión
// compartidos por todas las estrategias.
type StrategyConfig struct {
	SignalFloor        float64                      `yaml:"signal_floor"`
	ConsensusMin       int                          `yaml:"consensus_min"`
	MaxSpreadBps       float64                      `yaml:"max_spread_bps"`
	MinVolume24h       float64                      `yaml:"min_volume_24h"`
	MinLiquidity       float64                      `yaml:"min_liquidity"`
	ThresholdOverrides map[string]ThresholdOverride `yaml:"threshold_overrides"` // por market_id
}

// ThresholdOverride reemplaza signal_floor y/o consensus_min para un mercado.
type ThresholdOverride struct {
	SignalFloor  *float64 `yaml:"signal_floor"`
	ConsensusMin *int     `yaml:"consensus_min"`
}

// StrategyEntry es la configuración de una estrategia. enabled ausente = true.
type StrategyEntry struct {
	Enabled      *bool          `yaml:"enabled"`
	Weight       float64        `yaml:"weight"`
	Exclusive    bool           `yaml:"exclusive"`
	SignalFloor  *float64       `yaml:"signal_floor"`
	ConsensusMin *int           `yaml:"consensus_min"`
	Params       map[string]any `yaml:"params"`
}

// IsEnabled devuelve Enabled con default true.
func (e StrategyEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// FeesConfig controla el refresco de fees desde el CLOB.
type FeesConfig struct {
	RefreshSeconds   int    `yaml:"refresh_seconds"`
	ReferenceTokenID string `yaml:"reference_token_id"`
}

// RunnerConfig controla el loop de trading.
type RunnerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	Workers         int `yaml:"workers"` // 0 = NumCPU*2
	MarketLimit     int `yaml:"market_limit"`
	PollSeconds     int `yaml:"poll_seconds"`
	SummaryLimit    int `yaml:"summary_limit"`
}

// SnapshotsConfig controla el enriquecimiento de snapshots.
type SnapshotsConfig struct {
	Books            bool    `yaml:"books"`
	BookDepth        float64 `yaml:"book_depth"`
	Volatility       bool    `yaml:"volatility"`
	VolatilityTrades int     `yaml:"volatility_trades"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	DataBase  string `yaml:"data_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse construye la config desde YAML ya leído. Aplica entorno y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: env: %w", err)
	}
	setDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Interval devuelve el intervalo entre ticks.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Runner.IntervalSeconds) * time.Second
}

// PollInterval devuelve el intervalo del reconciler.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Runner.PollSeconds) * time.Second
}

// FeeRefresh devuelve el TTL del fee schedule.
func (c *Config) FeeRefresh() time.Duration {
	return time.Duration(c.Fees.RefreshSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	cfg.PrivateKey = strings.TrimSpace(os.Getenv("POLY_PRIVATE_KEY"))
	cfg.RPCURL = strings.TrimSpace(os.Getenv("POLYGON_RPC_URL"))

	if v := os.Getenv("EXECUTION_MODE"); v != "" {
		cfg.Execution.Mode = v
	}
	if v := os.Getenv("SLIPPAGE_MODEL"); v != "" {
		cfg.Execution.SlippageModel = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"TAKER_FEE", &cfg.Execution.Costs.TakerFee},
		{"MAKER_FEE", &cfg.Execution.Costs.MakerFee},
		{"EDGE_RISK_PREMIUM", &cfg.Execution.Costs.EdgeRiskPremium},
		{"STRATEGY_SIGNAL_FLOOR", &cfg.Strategy.SignalFloor},
	}
	for _, f := range floats {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", f.key, v, err)
		}
		*f.dst = n
	}

	if v := os.Getenv("STRATEGY_CONSENSUS_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STRATEGY_CONSENSUS_MIN=%q: %w", v, err)
		}
		cfg.Strategy.ConsensusMin = n
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Un fee a 0 es válido, así que los costs solo se rellenan si el bloque
// entero viene vacío.
func setDefaults(cfg *Config) {
	if cfg.Execution.Costs == (CostsConfig{}) {
		cfg.Execution.Costs = CostsConfig{TakerFee: 0.005, EdgeRiskPremium: 0.005}
	}
	if cfg.Trading.InitialBalance <= 0 {
		cfg.Trading.InitialBalance = 10_000
	}
	if cfg.Trading.MaxSinglePosition <= 0 {
		cfg.Trading.MaxSinglePosition = 0.01
	}
	if cfg.Trading.MinPositionSize <= 0 {
		cfg.Trading.MinPositionSize = 10
	}
	if cfg.Execution.Mode == "" {
		cfg.Execution.Mode = "offline"
	}
	if cfg.Execution.SlippageModel == "" {
		cfg.Execution.SlippageModel = "taker"
	}
	if cfg.Risk.VolatilityRiskCeiling <= 0 {
		cfg.Risk.VolatilityRiskCeiling = 0.2
	}
	if cfg.Risk.MaxVaRRatio <= 0 {
		cfg.Risk.MaxVaRRatio = 0.05
	}
	if cfg.Risk.MaxSingleOrderRatio <= 0 {
		cfg.Risk.MaxSingleOrderRatio = 0.01
	}
	if cfg.Risk.VaRLookback <= 0 {
		cfg.Risk.VaRLookback = 200
	}
	if cfg.Strategy.SignalFloor <= 0 {
		cfg.Strategy.SignalFloor = 0.12
	}
	if cfg.Strategy.ConsensusMin <= 0 {
		cfg.Strategy.ConsensusMin = 2
	}
	if cfg.Strategy.MaxSpreadBps <= 0 {
		cfg.Strategy.MaxSpreadBps = 1500
	}
	if cfg.Strategy.MinVolume24h <= 0 {
		cfg.Strategy.MinVolume24h = 1000
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	if cfg.Fees.RefreshSeconds <= 0 {
		cfg.Fees.RefreshSeconds = 300
	}
	if cfg.Runner.IntervalSeconds <= 0 {
		cfg.Runner.IntervalSeconds = 60
	}
	if cfg.Runner.MarketLimit <= 0 {
		cfg.Runner.MarketLimit = 200
	}
	if cfg.Runner.PollSeconds <= 0 {
		cfg.Runner.PollSeconds = 15
	}
	if cfg.Runner.SummaryLimit <= 0 {
		cfg.Runner.SummaryLimit = 20
	}
	if cfg.Snapshots.BookDepth <= 0 {
		cfg.Snapshots.BookDepth = 0.02
	}
	if cfg.Snapshots.VolatilityTrades <= 0 {
		cfg.Snapshots.VolatilityTrades = 100
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polytrader.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// DefaultStrategies son las cuatro estrategias con los pesos de producción.
func DefaultStrategies() map[string]StrategyEntry {
	on := true
	return map[string]StrategyEntry{
		"mean_reversion": {
			Enabled: &on,
			Weight:  0.40,
			Params: map[string]any{
				"min_confidence":                0.4,
				"min_deviation":                 0.06,
				"require_non_negative_momentum": true,
			},
		},
		"event_driven": {
			Enabled: &on,
			Weight:  0.30,
		},
		"micro_arbitrage": {
			Enabled: &on,
			Weight:  0.20,
			Params: map[string]any{
				"min_spread":   0.02,
				"min_net_edge": 0.002,
			},
		},
		"momentum_scalping": {
			Enabled: &on,
			Weight:  0.10,
			Params: map[string]any{
				"threshold": 0.05,
			},
		},
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Execution.Mode) {
	case "offline", "dry-run", "dry_run", "dryrun", "read-only", "read_only", "readonly", "live":
	default:
		return fmt.Errorf("execution.mode %q: %w", c.Execution.Mode, ErrInvalidMode)
	}
	switch strings.ToLower(c.Execution.SlippageModel) {
	case "taker", "maker", "maker_limit", "mid":
	default:
		return fmt.Errorf("execution.slippage_model %q: %w", c.Execution.SlippageModel, ErrInvalidSlippageModel)
	}

	ratios := []struct {
		name string
		v    float64
	}{
		{"trading.max_single_position", c.Trading.MaxSinglePosition},
		{"risk.max_var_ratio", c.Risk.MaxVaRRatio},
		{"risk.max_single_order_ratio", c.Risk.MaxSingleOrderRatio},
	}
	for _, r := range ratios {
		if r.v <= 0 || r.v > 1 {
			return fmt.Errorf("%s=%v: %w", r.name, r.v, ErrInvalidRatio)
		}
	}
	costs := []struct {
		name string
		v    float64
	}{
		{"execution.costs.taker_fee", c.Execution.Costs.TakerFee},
		{"execution.costs.maker_fee", c.Execution.Costs.MakerFee},
		{"execution.costs.edge_risk_premium", c.Execution.Costs.EdgeRiskPremium},
	}
	for _, r := range costs {
		if r.v < 0 || r.v >= 1 {
			return fmt.Errorf("%s=%v: %w", r.name, r.v, ErrInvalidRatio)
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: %w", c.Log.Format, ErrInvalidLogFormat)
	}
	return nil
}

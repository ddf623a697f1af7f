package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polytrader/config"
	"github.com/alejandrodnm/polytrader/internal/adapters/notify"
	"github.com/alejandrodnm/polytrader/internal/adapters/onchain"
	"github.com/alejandrodnm/polytrader/internal/adapters/polymarket"
	"github.com/alejandrodnm/polytrader/internal/adapters/storage"
	"github.com/alejandrodnm/polytrader/internal/application/engine"
	"github.com/alejandrodnm/polytrader/internal/application/execution"
	"github.com/alejandrodnm/polytrader/internal/application/exits"
	"github.com/alejandrodnm/polytrader/internal/application/lifecycle"
	"github.com/alejandrodnm/polytrader/internal/application/risk"
	"github.com/alejandrodnm/polytrader/internal/application/runner"
	"github.com/alejandrodnm/polytrader/internal/domain"
	"github.com/alejandrodnm/polytrader/internal/ports"
	"github.com/alejandrodnm/polytrader/internal/strategy"
)

const balanceTTL = 30 * time.Second

type app struct {
	runner     *runner.Runner
	reconciler *runner.Reconciler // nil fuera de live
}

// wire construye el grafo: snapshots → engine → risk → execution → tracker.
func wire(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, console *notify.Console, once bool) (*app, error) {
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	client.SetDataBase(cfg.API.DataBase)

	snapshots := polymarket.NewSnapshotSource(client, polymarket.SnapshotConfig{
		Books:            cfg.Snapshots.Books,
		BookDepth:        cfg.Snapshots.BookDepth,
		Volatility:       cfg.Snapshots.Volatility,
		VolatilityTrades: cfg.Snapshots.VolatilityTrades,
	})

	defaults := domain.FeeSchedule{
		Maker: cfg.Execution.Costs.MakerFee,
		Taker: cfg.Execution.Costs.TakerFee,
	}
	var feeSrc ports.FeeSource
	if cfg.Fees.ReferenceTokenID != "" {
		feeSrc = polymarket.NewFeeSource(client, cfg.Fees.ReferenceTokenID, cfg.Execution.Costs.MakerFee)
	}
	fees := execution.NewFeeManager(feeSrc, defaults, cfg.FeeRefresh())

	specs, err := strategy.DefaultRegistry().Build(strategyConfigs(cfg.Strategies), strategy.Filters{
		MaxSpreadBps: cfg.Strategy.MaxSpreadBps,
		MinVolume24h: cfg.Strategy.MinVolume24h,
		MinLiquidity: cfg.Strategy.MinLiquidity,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: strategies: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("wire: no strategy enabled")
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	slog.Info("strategies loaded", "names", strings.Join(names, ","))

	gen := engine.New(specs, fees, engineConfig(cfg))
	validator := risk.New(risk.Config{
		MaxVaRRatio:           cfg.Risk.MaxVaRRatio,
		MaxSingleOrderRatio:   cfg.Risk.MaxSingleOrderRatio,
		VolatilityRiskCeiling: cfg.Risk.VolatilityRiskCeiling,
		Lookback:              cfg.Risk.VaRLookback,
	})

	mode := domain.ParseExecutionMode(strings.ToLower(cfg.Execution.Mode))
	var (
		submitter *polymarket.Submitter
		balance   ports.BalanceSource
	)
	if mode == domain.ModeLive && cfg.PrivateKey != "" {
		auth, err := polymarket.NewAuthClient(client, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wire: auth: %w", err)
		}
		submitter = polymarket.NewSubmitter(auth)
		slog.Info("live trading enabled", "address", auth.Address().Hex())

		if cfg.RPCURL != "" {
			eth, err := onchain.Dial(ctx, cfg.RPCURL)
			if err != nil {
				return nil, fmt.Errorf("wire: rpc: %w", err)
			}
			balance = onchain.NewBalanceReader(eth, auth.Address(), balanceTTL)
		}
	}

	// nil tipado → interfaz no nil; se pasa solo si existe.
	var orderSubmitter ports.OrderSubmitter
	if submitter != nil {
		orderSubmitter = submitter
	}
	exec := execution.New(execution.Config{
		Mode:          mode,
		SlippageModel: cfg.Execution.SlippageModel,
	}, fees, orderSubmitter)

	tracker := lifecycle.New()
	r := runner.New(runner.Config{
		Interval:       cfg.Interval(),
		Workers:        cfg.Runner.Workers,
		MarketLimit:    cfg.Runner.MarketLimit,
		SummaryLimit:   cfg.Runner.SummaryLimit,
		ReturnsWindow:  cfg.Risk.VaRLookback,
		InitialBalance: cfg.Trading.InitialBalance,
		Once:           once,
	}, runner.Deps{
		Snapshots: snapshots,
		Engine:    gen,
		Risk:      validator,
		Executor:  exec,
		Tracker:   tracker,
		Exits:     exits.DefaultSet(),
		Storage:   store,
		Notifier:  console,
		Balance:   balance,
		Fees:      fees,
	})

	a := &app{runner: r}
	if submitter != nil {
		a.reconciler = runner.NewReconciler(tracker, submitter, store, r, cfg.PollInterval())
	}
	return a, nil
}

func engineConfig(cfg *config.Config) engine.Config {
	overrides := make(map[string]engine.Thresholds, len(cfg.Strategy.ThresholdOverrides))
	for id, ov := range cfg.Strategy.ThresholdOverrides {
		overrides[id] = engine.Thresholds{SignalFloor: ov.SignalFloor, ConsensusMin: ov.ConsensusMin}
	}
	return engine.Config{
		InitialBalance:    cfg.Trading.InitialBalance,
		MaxSinglePosition: cfg.Trading.MaxSinglePosition,
		MinPositionSize:   cfg.Trading.MinPositionSize,
		SignalFloor:       cfg.Strategy.SignalFloor,
		ConsensusMin:      cfg.Strategy.ConsensusMin,
		SlippageModel:     cfg.Execution.SlippageModel,
		EdgeRiskPremium:   cfg.Execution.Costs.EdgeRiskPremium,
		Overrides:         overrides,
	}
}

func strategyConfigs(entries map[string]config.StrategyEntry) map[string]strategy.Config {
	out := make(map[string]strategy.Config, len(entries))
	for name, e := range entries {
		out[name] = strategy.Config{
			Enabled:      e.IsEnabled(),
			Weight:       e.Weight,
			Exclusive:    e.Exclusive,
			SignalFloor:  e.SignalFloor,
			ConsensusMin: e.ConsensusMin,
			Params:       strategy.Params(e.Params),
		}
	}
	return out
}

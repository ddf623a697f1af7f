package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polytrader/config"
	"github.com/alejandrodnm/polytrader/internal/adapters/notify"
	"github.com/alejandrodnm/polytrader/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one tick and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print executed/closed/pending tables (default: compact 1-line)")
	mode := flag.String("mode", "", "execution mode: offline|dry-run|read-only|live (overrides config)")
	history := flag.Int("history", 0, "print realized PnL for the last N days and exit")
	order := flag.String("order", "", "print stored events and fills for an order id and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *mode != "" {
		cfg.Execution.Mode = *mode
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole(*table || *history > 0)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *history > 0:
		if err := printHistory(ctx, store, console, *history); err != nil {
			slog.Error("history failed", "err", err)
			os.Exit(1)
		}
		return
	case *order != "":
		if err := printOrder(ctx, store, console, *order); err != nil {
			slog.Error("order lookup failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("polytrader starting",
		"config", *configPath,
		"mode", cfg.Execution.Mode,
		"slippage", cfg.Execution.SlippageModel,
		"interval", cfg.Interval(),
		"once", *once,
	)

	app, err := wire(ctx, cfg, store, console, *once)
	if err != nil {
		slog.Error("failed to build trader", "err", err)
		os.Exit(1)
	}

	if err := app.runner.Restore(ctx); err != nil {
		slog.Warn("restore failed, starting flat", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.runner.Run(gctx) })
	if app.reconciler != nil && !*once {
		g.Go(func() error { return app.reconciler.Run(gctx) })
	}
	if err := g.Wait(); err != nil {
		slog.Error("trader exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polytrader stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Command helios-trader runs the live trading engine: it wires the stores,
// the broker, the strategy, and the portfolio into the event dispatch loop
// and blocks until interrupted.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"helios/internal/alert"
	"helios/internal/broker"
	"helios/internal/config"
	"helios/internal/engine"
	"helios/internal/portfolio"
	"helios/internal/store"
	"helios/internal/strategy"
	"helios/internal/util"
)

func main() {
	cfgPath := "config/helios.yaml"
	if p := os.Getenv("HELIOS_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	for _, dir := range []string{cfg.Storage.DataDir, filepath.Dir(cfg.Storage.SQLitePath)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("creating data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Error("opening sqlite store", "path", cfg.Storage.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	bars := store.NewParquetBarStore(cfg.Storage.DataDir)

	notifier := alert.NewClient(cfg.Alert.Endpoint(), logger)

	var (
		brk    broker.Broker
		stream broker.TradeStream
	)
	if cfg.Trading.PaperMode && cfg.Alpaca.APIKey == "" {
		sim := broker.NewSimulatorBroker(100000)
		brk, stream = sim, sim
		logger.Info("running against the simulator broker")
	} else {
		alp := broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, logger)
		brk, stream = alp, alp
	}

	executor := broker.NewExecutor(brk, 10*time.Second, logger)

	eng := engine.New(db, db, bars, executor, stream, notifier, logger, engine.Options{
		Symbols:        cfg.Trading.Symbols,
		MarketTimezone: cfg.Trading.MarketTimezone,
	})

	pf, err := portfolio.New(db, bars, brk, notifier, logger, portfolio.Options{
		MaxPositions: cfg.Trading.MaxPositions,
		ATRWindow:    cfg.Trading.ATRWindow,
		HoldingDays:  cfg.Trading.HoldingDays,
	})
	if err != nil {
		logger.Error("initialising portfolio", "error", err)
		os.Exit(1)
	}

	reg := strategy.NewRegistry()
	reg.Register(strategy.NewNop("nop"))
	active, _ := reg.Get("nop")

	eng.SetStrategy(active)
	eng.SetPortfolio(pf)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("helios-trader starting",
		"broker", brk.Name(), "paper_mode", cfg.Trading.PaperMode,
		"symbols", len(cfg.Trading.Symbols), "strategy", active.Name())

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("engine stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("helios-trader shut down")
}

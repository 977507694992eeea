// bracketbot is an automated bracket-order trading agent for MEXC spot.
//
// Architecture:
//
//	main.go                  — entry point: loads config, starts the engine,
//	                            submits one bracket from flags, waits for
//	                            SIGINT/SIGTERM.
//	engine/engine.go         — orchestrator: wires the exchange client,
//	                            symbol catalog, trading window gate, and
//	                            liquidator; starts one monitor goroutine per
//	                            accepted bracket.
//	bracket/machine.go       — the order lifecycle state machine: entry
//	                            fill, protective-leg arming, and exit.
//	bracket/placement.go     — the order placement cascade (native OCO,
//	                            sequential legs, simplified fallback).
//	bracket/registry.go      — in-memory table of live brackets.
//	catalog/catalog.go       — symbol precision/tradability lookups with a
//	                            short TTL cache.
//	liquidator/liquidator.go — the emergency liquidator's three-stage
//	                            fallback for a software market exit that
//	                            the exchange rejects as oversold-blocked.
//	window/window.go         — trading-window gate and daily order quota.
//	exchange/client.go       — signed REST client for the MEXC spot API.
//	store/store.go           — JSON file persistence for open brackets
//	                            (survives restarts).
//
// A bracket is one LIMIT entry order plus its stop-loss and take-profit
// exits; the engine drives it from submission to close without further
// user input.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"bracketbot/internal/config"
	"bracketbot/internal/engine"
	"bracketbot/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("BRACKET_CONFIG"); p != "" {
		cfgPath = p
	}

	var (
		symbol   = pflag.String("symbol", "", "trading symbol (overrides config)")
		side     = pflag.String("side", "BUY", "entry side: BUY or SELL")
		quantity = pflag.Float64("quantity", 0, "entry quantity (overrides config)")
		entry    = pflag.Float64("entry", 0, "entry limit price")
		stop     = pflag.Float64("stop", 0, "stop-loss trigger price")
		take     = pflag.Float64("take-profit", 0, "take-profit trigger price")
		ttl      = pflag.Duration("entry-ttl", 0, "cancel the entry order if unfilled after this long (0 disables)")
		submit   = pflag.Bool("submit", true, "submit one bracket on startup using the flags above")
	)
	pflag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if *symbol != "" {
		cfg.Trading.Symbol = *symbol
	}
	if *quantity > 0 {
		cfg.Trading.Quantity = *quantity
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("bracketbot started",
		"symbol", cfg.Trading.Symbol,
		"max_orders_per_day", cfg.Trading.MaxOrdersDay,
		"dry_run", cfg.DryRun,
	)

	if *submit {
		if *entry <= 0 || *stop <= 0 || *take <= 0 {
			logger.Error("--entry, --stop, and --take-profit are required to submit a bracket")
			os.Exit(1)
		}
		req := engine.SubmitRequest{
			Symbol:          cfg.Trading.Symbol,
			Side:            types.Side(*side),
			Quantity:        decimal.NewFromFloat(cfg.Trading.Quantity),
			EntryPrice:      decimal.NewFromFloat(*entry),
			StopPrice:       decimal.NewFromFloat(*stop),
			TakeProfitPrice: decimal.NewFromFloat(*take),
			EntryTTL:        *ttl,
		}
		id, err := eng.SubmitBracket(context.Background(), req)
		if err != nil {
			logger.Error("failed to submit bracket", "error", err)
			eng.Stop()
			os.Exit(1)
		}
		logger.Info("bracket submitted", "id", id)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

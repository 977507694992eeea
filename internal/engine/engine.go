// Package engine is the central orchestrator of the bracket trading agent.
//
// It wires together all subsystems:
//
//  1. exchange.Client talks to MEXC: signed order placement, cancellation,
//     status polling, and symbol/ticker lookups.
//  2. catalog.Catalog resolves symbol precision and tradability; a shared
//     catalog.PriceCache lets concurrent brackets on the same symbol reuse
//     one ticker poll instead of each hitting the API on its own tick.
//  3. window.Gate enforces the configured trading windows and the daily
//     order quota before a new bracket is ever submitted.
//  4. Each accepted bracket gets its own bracket.Monitor.Run goroutine,
//     registered in a bracket.Registry so the engine can enumerate,
//     persist, and tear down live positions.
//  5. liquidator.Liquidator is the shared fallback a Monitor reaches for
//     when a software market exit is rejected as oversold-blocked.
//
// Lifecycle: New() → Start() → SubmitBracket() (repeatable) → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bracketbot/internal/bracket"
	"bracketbot/internal/catalog"
	"bracketbot/internal/config"
	"bracketbot/internal/exchange"
	"bracketbot/internal/liquidator"
	"bracketbot/internal/store"
	"bracketbot/internal/window"
	"bracketbot/pkg/types"
)

// SubmitRequest is the parameter set for one user-initiated bracket order.
type SubmitRequest struct {
	Symbol          string
	Side            types.Side
	Quantity        decimal.Decimal
	EntryPrice      decimal.Decimal
	StopPrice       decimal.Decimal
	TakeProfitPrice decimal.Decimal
	EntryTTL        time.Duration
}

// slot tracks one running bracket's goroutine so it can be torn down on
// shutdown.
type slot struct {
	order  *bracket.Order
	cancel context.CancelFunc
}

// Engine orchestrates all components of the bracket trading agent. It owns
// the lifecycle of every bracket's monitor goroutine.
type Engine struct {
	cfg config.Config

	client     *exchange.Client
	catalog    *catalog.Catalog
	prices     *catalog.PriceCache
	gate       *window.Gate
	liquidator *liquidator.Liquidator
	monitor    *bracket.Monitor
	registry   *bracket.Registry
	store      *store.Store
	logger     *slog.Logger

	events chan bracket.Event

	slots   map[string]*slot
	slotsMu sync.Mutex

	nextID   int
	nextIDMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every subsystem from cfg. It does not place any orders or
// start any goroutines; call Start for that.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	signer := exchange.NewSigner(types.Credentials{APIKey: cfg.API.APIKey, SecretKey: cfg.API.SecretKey})
	client := exchange.NewClient(cfg.API.BaseURL, cfg.API.RatePerS, signer, cfg.DryRun, logger)

	cat := catalog.New(client, logger)
	prices := catalog.NewPriceCache()

	gate, err := window.New(cfg.Trading, logger)
	if err != nil {
		return nil, fmt.Errorf("trading window config: %w", err)
	}

	liq := liquidator.New(client, cfg.Liquidator, logger)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	registry := bracket.NewRegistry(nil)
	events := make(chan bracket.Event, 256)

	tick := time.Duration(cfg.Trading.MonitorTickMS) * time.Millisecond
	monitor := bracket.NewMonitor(client, cat, prices, liq, logger, tick)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:        cfg,
		client:     client,
		catalog:    cat,
		prices:     prices,
		gate:       gate,
		liquidator: liq,
		monitor:    monitor,
		registry:   registry,
		store:      st,
		logger:     logger.With("component", "engine"),
		events:     events,
		slots:      make(map[string]*slot),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the background event-logging goroutine. Bracket monitor
// goroutines are started individually by SubmitBracket.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.logEvents()
	}()
	return nil
}

// logEvents consumes lifecycle events emitted by every running bracket
// and persists a snapshot after each transition, removing terminal
// brackets from both the store and the registry.
func (e *Engine) logEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case evt := <-e.events:
			e.logger.Info("bracket transition", "order", evt.OrderID, "state", evt.State, "reason", evt.Reason)

			o, ok := e.registry.Get(evt.OrderID)
			if !ok {
				continue
			}
			if err := e.store.SavePosition(o); err != nil {
				e.logger.Error("failed to persist bracket", "order", evt.OrderID, "error", err)
			}
			if evt.State.IsTerminal() {
				e.registry.Remove(evt.OrderID)
				if err := e.store.RemovePosition(evt.OrderID); err != nil {
					e.logger.Error("failed to clean up persisted bracket", "order", evt.OrderID, "error", err)
				}
			}
		}
	}
}

// SubmitBracket validates req against the trading window and daily quota,
// resolves symbol precision, and starts a new monitor goroutine for the
// resulting bracket. It returns the bracket's assigned position id.
func (e *Engine) SubmitBracket(ctx context.Context, req SubmitRequest) (string, error) {
	if err := bracket.ValidatePriceOrdering(req.Side, req.EntryPrice, req.StopPrice, req.TakeProfitPrice); err != nil {
		return "", err
	}

	now := time.Now()
	if err := e.gate.RequireOpen(now); err != nil {
		return "", err
	}
	if err := e.gate.CheckQuota(now); err != nil {
		return "", err
	}

	spec, err := e.catalog.Validate(ctx, req.Symbol)
	if err != nil {
		return "", fmt.Errorf("resolve symbol: %w", err)
	}
	qty, err := catalog.FormatQuantity(req.Quantity, spec)
	if err != nil {
		return "", fmt.Errorf("format quantity: %w", err)
	}

	id := e.allocateID()
	o := &bracket.Order{
		ID:              id,
		Symbol:          spec.Symbol,
		Side:            req.Side,
		Quantity:        qty,
		EntryPrice:      req.EntryPrice,
		StopPrice:       req.StopPrice,
		TakeProfitPrice: req.TakeProfitPrice,
		EntryTTL:        req.EntryTTL,
		State:           bracket.StateSubmitting,
		CreatedAt:       now,
	}

	e.registry.Register(o)
	e.gate.RecordOrder(now)

	monitorCtx, cancel := context.WithCancel(e.ctx)
	e.slotsMu.Lock()
	e.slots[id] = &slot{order: o, cancel: cancel}
	e.slotsMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.monitor.Run(monitorCtx, o, e.events)
		e.slotsMu.Lock()
		delete(e.slots, id)
		e.slotsMu.Unlock()
	}()

	e.logger.Info("bracket submitted", "order", id, "symbol", o.Symbol, "side", o.Side, "qty", o.Quantity)
	return id, nil
}

func (e *Engine) allocateID() string {
	e.nextIDMu.Lock()
	defer e.nextIDMu.Unlock()
	e.nextID++
	return fmt.Sprintf("bracket-%d-%d", time.Now().UnixNano(), e.nextID)
}

// Positions returns a snapshot of every bracket currently tracked by the
// engine, open or in the middle of closing.
func (e *Engine) Positions() []*bracket.Order {
	return e.registry.Snapshot()
}

// Stop cancels every running bracket's monitor goroutine, persists their
// final state, and waits for all goroutines to exit.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.slotsMu.Lock()
	for _, s := range e.slots {
		s.cancel()
	}
	e.slotsMu.Unlock()

	e.cancel()
	e.wg.Wait()

	for _, o := range e.registry.Snapshot() {
		if err := e.store.SavePosition(o); err != nil {
			e.logger.Error("failed to save position on shutdown", "order", o.ID, "error", err)
		}
	}

	e.store.Close()
	e.logger.Info("shutdown complete")
}

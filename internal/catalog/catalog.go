// Package catalog resolves tradable symbols and their precision rules, and
// caches the result so the bracket engine does not hit exchangeInfo on
// every order placement.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bracketbot/pkg/types"
)

// ttl is how long a resolved SymbolSpec stays valid before the next
// Resolve call re-fetches it from the exchange.
const ttl = 5 * time.Minute

// infoClient is the subset of exchange.Client the catalog depends on.
type infoClient interface {
	ExchangeInfo(ctx context.Context, symbol string) ([]types.SymbolSpec, error)
}

type cacheEntry struct {
	spec     types.SymbolSpec
	fetchedAt time.Time
}

// Catalog resolves and caches symbol trading rules.
type Catalog struct {
	client infoClient
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New creates a symbol catalog backed by client.
func New(client infoClient, logger *slog.Logger) *Catalog {
	return &Catalog{
		client: client,
		logger: logger.With("component", "catalog"),
		cache:  make(map[string]cacheEntry),
	}
}

// Resolve normalizes symbol and returns its trading rules, fetching from
// the exchange on a cache miss or after ttl has elapsed.
func (c *Catalog) Resolve(ctx context.Context, symbol string) (types.SymbolSpec, error) {
	symbol = normalize(symbol)

	c.mu.RLock()
	entry, ok := c.cache[symbol]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < ttl {
		return entry.spec, nil
	}

	specs, err := c.client.ExchangeInfo(ctx, symbol)
	if err != nil {
		return types.SymbolSpec{}, fmt.Errorf("resolve %s: %w", symbol, err)
	}
	if len(specs) == 0 {
		return types.SymbolSpec{}, fmt.Errorf("resolve %s: %w", symbol, ErrSymbolUnknown)
	}

	spec := specs[0]
	c.mu.Lock()
	c.cache[symbol] = cacheEntry{spec: spec, fetchedAt: time.Now()}
	c.mu.Unlock()

	return spec, nil
}

// Validate resolves symbol and confirms it is currently tradable.
func (c *Catalog) Validate(ctx context.Context, symbol string) (types.SymbolSpec, error) {
	spec, err := c.Resolve(ctx, symbol)
	if err != nil {
		return types.SymbolSpec{}, err
	}
	if !spec.IsTradable() {
		return types.SymbolSpec{}, fmt.Errorf("validate %s: %w", symbol, ErrSymbolNotTradable)
	}
	return spec, nil
}

// stepHeuristics covers base assets whose lot-size step MEXC does not
// always surface cleanly through exchangeInfo. Used only when spec.StepSize
// is below stepPlausibilityThreshold (zero included); a StepSize at or
// above the threshold from the exchange always wins.
var stepHeuristics = map[string]decimal.Decimal{
	"BTC": decimal.RequireFromString("0.001"),
	"ETH": decimal.RequireFromString("0.001"),
	"XRP": decimal.RequireFromString("0.1"),
	"ADA": decimal.RequireFromString("0.1"),
	"DOGE": decimal.RequireFromString("0.1"),
	"SHIB": decimal.RequireFromString("0.1"),
}

const defaultStep = "0.01"

// stepPlausibilityThreshold is the smallest step size trusted from
// exchangeInfo as-is. MEXC sometimes reports an implausibly small (or
// zero) baseSizePrecision for thin pairs; below this threshold the
// heuristic substitution in stepHeuristics takes over.
var stepPlausibilityThreshold = decimal.RequireFromString("0.001")

// FormatQuantity floors raw down to the symbol's lot-size step and
// returns ErrQuantityOutOfRange if the floored quantity falls outside
// [MinQty, MaxQty].
func FormatQuantity(raw decimal.Decimal, spec types.SymbolSpec) (decimal.Decimal, error) {
	step := spec.StepSize
	if step.LessThan(stepPlausibilityThreshold) {
		if h, ok := stepHeuristics[strings.ToUpper(spec.BaseAsset)]; ok {
			step = h
		} else {
			step = decimal.RequireFromString(defaultStep)
		}
	}

	floored := raw.DivRound(step, 16).Truncate(0).Mul(step)

	if !spec.MinQty.IsZero() && floored.LessThan(spec.MinQty) {
		return decimal.Zero, fmt.Errorf("format quantity %s: %w", raw, ErrQuantityOutOfRange)
	}
	if !spec.MaxQty.IsZero() && floored.GreaterThan(spec.MaxQty) {
		return decimal.Zero, fmt.Errorf("format quantity %s: %w", raw, ErrQuantityOutOfRange)
	}
	if floored.IsZero() {
		return decimal.Zero, fmt.Errorf("format quantity %s: %w", raw, ErrQuantityOutOfRange)
	}

	return floored, nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

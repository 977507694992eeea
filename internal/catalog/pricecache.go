package catalog

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache keeps the last known traded price per symbol so the bracket
// monitor can evaluate software stop-loss/take-profit triggers without a
// network round trip on every tick.
type PriceCache struct {
	mu      sync.RWMutex
	prices  map[string]decimal.Decimal
	updated map[string]time.Time
}

// NewPriceCache creates an empty price cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices:  make(map[string]decimal.Decimal),
		updated: make(map[string]time.Time),
	}
}

// Set records price as the latest known price for symbol.
func (c *PriceCache) Set(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
	c.updated[symbol] = time.Now()
}

// Get returns the last known price for symbol and whether one is on
// record at all.
func (c *PriceCache) Get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok
}

// IsStale reports whether symbol has no price on record, or its last
// update is older than maxAge.
func (c *PriceCache) IsStale(symbol string, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.updated[symbol]
	if !ok {
		return true
	}
	return time.Since(t) > maxAge
}

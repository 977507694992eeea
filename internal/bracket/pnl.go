package bracket

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bracketbot/pkg/types"
)

// Fill records a single execution against a bracket's entry or exit leg.
type Fill struct {
	Timestamp time.Time
	Side      types.Side
	Price     decimal.Decimal
	Qty       decimal.Decimal
}

// PnL tracks realized profit and loss for a single bracket order. Unlike a
// market-maker's running inventory, a bracket has exactly one entry fill
// and exactly one exit fill (stop-loss or take-profit), so there is no
// average-entry-price bookkeeping: the entry price is fixed the moment the
// entry leg fills.
type PnL struct {
	mu          sync.RWMutex
	entrySide   types.Side
	entryPrice  decimal.Decimal
	entryQty    decimal.Decimal
	exitPrice   decimal.Decimal
	exitQty     decimal.Decimal
	realized    decimal.Decimal
	lastUpdated time.Time
}

// New creates an empty PnL tracker.
func New() *PnL {
	return &PnL{}
}

// OnEntryFill records the bracket's entry execution.
func (p *PnL) OnEntryFill(fill Fill) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entrySide = fill.Side
	p.entryPrice = fill.Price
	p.entryQty = fill.Qty
	p.lastUpdated = fill.Timestamp
}

// OnExitFill records the bracket's exit execution (whichever of
// stop-loss/take-profit triggered first) and computes realized PnL. A BUY
// entry realizes (exitPrice-entryPrice)*qty; a SELL entry realizes the
// inverse.
func (p *PnL) OnExitFill(fill Fill) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exitPrice = fill.Price
	p.exitQty = fill.Qty
	p.lastUpdated = fill.Timestamp

	diff := fill.Price.Sub(p.entryPrice).Mul(fill.Qty)
	if p.entrySide == types.SELL {
		diff = diff.Neg()
	}
	p.realized = diff
}

// Realized returns the bracket's realized PnL. Zero until the exit leg has
// filled.
func (p *PnL) Realized() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// Unrealized returns mark-to-market PnL against the entry fill using the
// given current price. Zero once the exit leg has filled, since the
// position is then closed.
func (p *PnL) Unrealized(currentPrice decimal.Decimal) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.exitQty.IsZero() || p.entryQty.IsZero() {
		return decimal.Zero
	}

	diff := currentPrice.Sub(p.entryPrice).Mul(p.entryQty)
	if p.entrySide == types.SELL {
		diff = diff.Neg()
	}
	return diff
}

// EntryPrice returns the recorded entry fill price.
func (p *PnL) EntryPrice() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entryPrice
}

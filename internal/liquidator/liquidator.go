// Package liquidator implements the fallback path for closing a bracket's
// position when a software stop-loss/take-profit market exit is rejected
// as oversold-blocked. It escalates through three stages, each more
// aggressive than the last, until the position is flat.
package liquidator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bracketbot/internal/config"
	"bracketbot/internal/exchange"
	"bracketbot/pkg/types"
)

// exchangeClient is the subset of exchange.Client the liquidator needs.
type exchangeClient interface {
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error)
	TickerPrice(ctx context.Context, symbol string) decimal.Decimal
	OrderStatus(ctx context.Context, symbol, orderID string) (*exchange.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// Liquidator closes a position through micro-batching, a discount ladder,
// and finally progressive probing retries.
type Liquidator struct {
	client exchangeClient
	cfg    config.LiquidatorConfig
	logger *slog.Logger
}

// New creates a liquidator.
func New(client exchangeClient, cfg config.LiquidatorConfig, logger *slog.Logger) *Liquidator {
	return &Liquidator{client: client, cfg: cfg, logger: logger.With("component", "liquidator")}
}

// Liquidate drives a position to flat, trying each stage in order and
// returning as soon as the full quantity has been closed. It returns the
// total quantity actually liquidated and an error only if every stage was
// exhausted without closing the full size.
func (l *Liquidator) Liquidate(ctx context.Context, symbol string, side types.Side, qty decimal.Decimal) (decimal.Decimal, error) {
	l.logger.Error("emergency liquidation engaged", "symbol", symbol, "side", side, "qty", qty)

	closed, err := l.microBatch(ctx, symbol, side, qty)
	if closed.GreaterThanOrEqual(qty) {
		return closed, nil
	}
	remaining := qty.Sub(closed)
	l.logger.Warn("micro-batch stage incomplete, escalating to discount ladder", "remaining", remaining, "error", err)

	ladderClosed, err := l.discountLadder(ctx, symbol, side, remaining)
	closed = closed.Add(ladderClosed)
	if closed.GreaterThanOrEqual(qty) {
		return closed, nil
	}
	remaining = qty.Sub(closed)
	l.logger.Warn("discount ladder stage incomplete, escalating to progressive retry", "remaining", remaining, "error", err)

	retryClosed, err := l.progressiveRetry(ctx, symbol, side, remaining)
	closed = closed.Add(retryClosed)
	if closed.GreaterThanOrEqual(qty) {
		return closed, nil
	}
	return closed, fmt.Errorf("liquidation incomplete after all stages, closed %s of %s: %w", closed, qty, err)
}

// microBatchUnits/spacing/successThreshold describe stage 1: break the
// position into small market orders spaced out in time, so a single
// rejected slice doesn't block the rest. The stage is considered adequate
// once at least 80% of attempted slices succeed; any shortfall is picked
// up by the next stage.
const microBatchSuccessThreshold = 0.8

// unlockWait is how long stage 1 waits after cancelling open orders on the
// symbol, giving the exchange time to release the quantity they held
// before the micro-batch slices are placed.
const unlockWait = 1 * time.Second

// unlock cancels any open orders on the liquidation side, which would
// otherwise lock quantity the micro-batch needs to sell (or buy, for a
// short position), then waits for the cancellations to take effect.
func (l *Liquidator) unlock(ctx context.Context, symbol string, side types.Side) {
	open, err := l.client.OpenOrders(ctx, symbol)
	if err != nil {
		l.logger.Warn("failed to list open orders before liquidation", "symbol", symbol, "error", err)
		return
	}
	canceled := 0
	for _, o := range open {
		if o.Side != side {
			continue
		}
		if err := l.client.CancelOrder(ctx, symbol, o.OrderID); err != nil {
			l.logger.Warn("failed to cancel locking order before liquidation", "order", o.OrderID, "error", err)
			continue
		}
		canceled++
	}
	if canceled == 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(unlockWait):
	}
}

func (l *Liquidator) microBatch(ctx context.Context, symbol string, side types.Side, qty decimal.Decimal) (decimal.Decimal, error) {
	l.unlock(ctx, symbol, side)

	units := l.cfg.MicroBatchUnits
	if len(units) == 0 {
		units = []float64{0.5, 0.8, 1.0, 1.5, 2.0}
	}
	spacing := time.Duration(l.cfg.MicroBatchSpacing) * time.Millisecond
	if spacing <= 0 {
		spacing = 200 * time.Millisecond
	}

	var closed decimal.Decimal
	attempted, succeeded := 0, 0
	for _, u := range units {
		if closed.GreaterThanOrEqual(qty) {
			break
		}
		slice := decimal.NewFromFloat(u)
		if slice.GreaterThan(qty.Sub(closed)) {
			slice = qty.Sub(closed)
		}
		attempted++
		res, err := l.client.PlaceOrder(ctx, exchange.OrderRequest{Symbol: symbol, Side: side, Type: types.MARKET, Quantity: slice})
		if err != nil {
			l.logger.Warn("micro-batch slice rejected", "slice", slice, "error", err)
			continue
		}
		succeeded++
		closed = closed.Add(res.Qty)

		select {
		case <-ctx.Done():
			return closed, ctx.Err()
		case <-time.After(spacing):
		}
	}

	if attempted == 0 {
		return closed, nil
	}
	if float64(succeeded)/float64(attempted) < microBatchSuccessThreshold {
		return closed, fmt.Errorf("micro-batch success rate %d/%d below threshold", succeeded, attempted)
	}
	return closed, nil
}

// discountLadder is stage 2: place a LIMIT order increasingly below (for a
// sell) or above (for a buy) the current ticker price, waiting briefly
// after each rung to let it fill before moving to the next, deeper
// discount.
func (l *Liquidator) discountLadder(ctx context.Context, symbol string, side types.Side, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.IsZero() {
		return decimal.Zero, nil
	}
	discounts := l.cfg.LadderDiscounts
	if len(discounts) == 0 {
		discounts = []float64{0.5, 1.0, 2.0, 3.0}
	}

	for _, pct := range discounts {
		mark := l.client.TickerPrice(ctx, symbol)
		if mark.IsZero() {
			continue
		}
		factor := decimal.NewFromFloat(1 - pct/100)
		if side == types.BUY {
			factor = decimal.NewFromFloat(1 + pct/100)
		}
		price := mark.Mul(factor)

		res, err := l.client.PlaceOrder(ctx, exchange.OrderRequest{Symbol: symbol, Side: side, Type: types.LIMIT, Quantity: qty, Price: price})
		if err != nil {
			l.logger.Warn("discount ladder rung rejected", "pct", pct, "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-time.After(time.Second):
		}

		status, err := l.client.OrderStatus(ctx, symbol, res.OrderID)
		if err == nil && status.Status.IsFilled() {
			return qty, nil
		}
		l.logger.Warn("discount ladder rung did not fill in time", "pct", pct)
	}

	return decimal.Zero, fmt.Errorf("discount ladder exhausted without a fill")
}

// progressiveRetry is the last-resort stage 3: one market order attempt
// per configured delay, probing 10%, 50% and then 100% of the remaining
// quantity (repeating that cycle if there are more delays than probe
// sizes), each followed by its delay, on the theory that a transient exchange condition (rate limiting,
// momentary halt) may clear given enough time.
func (l *Liquidator) progressiveRetry(ctx context.Context, symbol string, side types.Side, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.IsZero() {
		return decimal.Zero, nil
	}
	delays := l.cfg.RetryDelaysSec
	if len(delays) == 0 {
		delays = []float64{0.5, 2, 5, 10}
	}
	probeFactors := []float64{0.1, 0.5, 1.0}

	var closed decimal.Decimal
	for i, d := range delays {
		if closed.GreaterThanOrEqual(qty) {
			break
		}
		factor := probeFactors[i%len(probeFactors)]
		probe := qty.Sub(closed).Mul(decimal.NewFromFloat(factor))
		if probe.IsZero() {
			probe = qty.Sub(closed)
		}

		res, err := l.client.PlaceOrder(ctx, exchange.OrderRequest{Symbol: symbol, Side: side, Type: types.MARKET, Quantity: probe})
		if err != nil {
			l.logger.Error("progressive retry probe rejected", "attempt", i, "probe", probe, "error", err)
		} else {
			closed = closed.Add(res.Qty)
		}

		select {
		case <-ctx.Done():
			return closed, ctx.Err()
		case <-time.After(time.Duration(d * float64(time.Second))):
		}
	}

	if closed.LessThan(qty) {
		return closed, fmt.Errorf("progressive retry exhausted, closed %s of %s", closed, qty)
	}
	return closed, nil
}

// Package bracket implements the order lifecycle engine: the state
// machine that drives one user-submitted bracket (LIMIT entry plus
// stop-loss and take-profit exits) from submission through to a closed
// position.
package bracket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bracketbot/internal/catalog"
	"bracketbot/internal/exchange"
	"bracketbot/pkg/types"
)

// State is one stage of a bracket's lifecycle.
type State string

const (
	StateSubmitting State = "SUBMITTING"
	StateWaitingFill State = "WAITING_FILL"
	StateMainFilled  State = "MAIN_FILLED"
	StateProtected   State = "PROTECTED"
	StateClosing     State = "CLOSING"
	StateClosed      State = "CLOSED"
	StateFailed      State = "FAILED"
)

// IsTerminal reports whether a monitor loop should stop once an order
// reaches this state.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// Order is one bracket: a LIMIT entry plus its protective stop-loss and
// take-profit legs, and the state machine's bookkeeping for both.
type Order struct {
	ID       string
	Symbol   string
	Side     types.Side // entry side; the exit side is the opposite
	Quantity decimal.Decimal

	EntryPrice      decimal.Decimal
	StopPrice       decimal.Decimal
	TakeProfitPrice decimal.Decimal
	EntryTTL        time.Duration

	State       State
	CloseReason string

	EntryOrderID string
	StopOrderID  string
	TakeOrderID  string
	NativeOCO    bool
	StopArmed    bool
	TakeArmed    bool

	CreatedAt   time.Time
	SubmittedAt time.Time
	ClosedAt    time.Time
}

// exitSide returns the side that closes this bracket's position.
func (o *Order) exitSide() types.Side {
	if o.Side == types.SELL {
		return types.BUY
	}
	return types.SELL
}

// ValidatePriceOrdering checks that stop, entry, and take are ordered so
// the stop-loss caps a loss and the take-profit locks in a gain: for a
// BUY, stop < entry < take; for a SELL, take < entry < stop.
func ValidatePriceOrdering(side types.Side, entry, stop, take decimal.Decimal) error {
	if side == types.SELL {
		if !(take.LessThan(entry) && entry.LessThan(stop)) {
			return fmt.Errorf("%w: want take_profit < entry < stop_loss for a SELL, got %s < %s < %s", ErrInvalidPriceOrdering, take, entry, stop)
		}
		return nil
	}
	if !(stop.LessThan(entry) && entry.LessThan(take)) {
		return fmt.Errorf("%w: want stop_loss < entry < take_profit for a BUY, got %s < %s < %s", ErrInvalidPriceOrdering, stop, entry, take)
	}
	return nil
}

// Event reports a state transition for a bracket, for logging,
// persistence, and any UI that wants to observe bracket lifecycle.
type Event struct {
	OrderID string
	State   State
	Reason  string
	At      time.Time
}

// statusClient is the subset of exchange.Client a monitor needs beyond
// the placement cascade's placer interface.
type statusClient interface {
	placer
	OrderStatus(ctx context.Context, symbol, orderID string) (*exchange.Order, error)
	TickerPrice(ctx context.Context, symbol string) decimal.Decimal
}

// liquidatorClient is the interface the monitor uses to fall back to an
// emergency liquidation when a software market exit is rejected as
// oversold-blocked.
type liquidatorClient interface {
	Liquidate(ctx context.Context, symbol string, side types.Side, qty decimal.Decimal) (decimal.Decimal, error)
}

// unlockDelay is how long the monitor waits after cancelling a bracket's
// counter-leg before sending the software market exit. This gives the
// exchange time to process the cancel so the counter-leg cannot also fill
// and leave the position over-closed.
const unlockDelay = 500 * time.Millisecond

const defaultMonitorTick = 100 * time.Millisecond

// Monitor drives one bracket's state machine. A Monitor instance is
// shared across brackets; Run spawns one call per bracket, each with its
// own ticker, so bracket state transitions never block each other.
type Monitor struct {
	client     statusClient
	catalog    *catalog.Catalog
	prices     *catalog.PriceCache
	liquidator liquidatorClient
	logger     *slog.Logger
	tick       time.Duration
}

// NewMonitor creates a monitor with the given tick interval. A zero
// interval falls back to the default 100ms tick.
func NewMonitor(client statusClient, cat *catalog.Catalog, prices *catalog.PriceCache, liq liquidatorClient, logger *slog.Logger, tick time.Duration) *Monitor {
	if tick <= 0 {
		tick = defaultMonitorTick
	}
	return &Monitor{client: client, catalog: cat, prices: prices, liquidator: liq, logger: logger.With("component", "bracket"), tick: tick}
}

// Run drives o through its state machine until it reaches a terminal
// state or ctx is cancelled. Each step is emitted on events if non-nil;
// events is drained non-blockingly so a slow consumer never stalls the
// bracket itself.
func (m *Monitor) Run(ctx context.Context, o *Order, events chan<- Event) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	pnl := New()

	for {
		if o.State.IsTerminal() {
			return
		}
		select {
		case <-ctx.Done():
			m.teardown(context.Background(), o)
			return
		case <-ticker.C:
			m.step(ctx, o, pnl)
			m.emit(events, Event{OrderID: o.ID, State: o.State, Reason: o.CloseReason, At: time.Now()})
		}
	}
}

func (m *Monitor) emit(events chan<- Event, evt Event) {
	if events == nil {
		return
	}
	select {
	case events <- evt:
	default:
		select {
		case <-events:
		default:
		}
		events <- evt
	}
}

func (m *Monitor) step(ctx context.Context, o *Order, pnl *PnL) {
	switch o.State {
	case StateSubmitting:
		m.submit(ctx, o)
	case StateWaitingFill:
		m.awaitFill(ctx, o, pnl)
	case StateMainFilled:
		m.armOrLiquidate(ctx, o)
	case StateProtected:
		m.monitorProtection(ctx, o, pnl)
	}
}

func (m *Monitor) submit(ctx context.Context, o *Order) {
	spec, err := m.catalog.Validate(ctx, o.Symbol)
	if err != nil {
		o.State = StateFailed
		o.CloseReason = err.Error()
		return
	}
	qty, err := catalog.FormatQuantity(o.Quantity, spec)
	if err != nil {
		o.State = StateFailed
		o.CloseReason = err.Error()
		return
	}
	o.Quantity = qty

	order, err := m.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:      o.Symbol,
		Side:        o.Side,
		Type:        types.LIMIT,
		TimeInForce: types.GTC,
		Quantity:    o.Quantity,
		Price:       o.EntryPrice,
	})
	if err != nil {
		o.State = StateFailed
		o.CloseReason = fmt.Sprintf("entry placement failed: %v", err)
		return
	}

	o.EntryOrderID = order.OrderID
	o.SubmittedAt = time.Now()
	o.State = StateWaitingFill
}

func (m *Monitor) awaitFill(ctx context.Context, o *Order, pnl *PnL) {
	if o.EntryTTL > 0 && time.Since(o.SubmittedAt) > o.EntryTTL {
		if err := m.client.CancelOrder(ctx, o.Symbol, o.EntryOrderID); err != nil {
			m.logger.Warn("cancel expired entry failed", "order", o.ID, "error", err)
		}
		o.State = StateFailed
		o.CloseReason = ErrEntryExpired.Error()
		return
	}

	status, err := m.client.OrderStatus(ctx, o.Symbol, o.EntryOrderID)
	if err != nil {
		m.logger.Warn("entry order status check failed", "order", o.ID, "error", err)
		return
	}
	if status.Status.IsFilled() {
		pnl.OnEntryFill(Fill{Timestamp: time.Now(), Side: o.Side, Price: status.Price, Qty: status.Qty})
		o.State = StateMainFilled
		return
	}
	if status.Status.IsDeadWithoutFill() {
		o.State = StateFailed
		o.CloseReason = fmt.Sprintf("entry order ended without fill: %s", status.Status)
	}
}

func (m *Monitor) armOrLiquidate(ctx context.Context, o *Order) {
	prot, err := armProtection(ctx, m.client, o, m.logger)
	if err != nil {
		// Neither leg could be armed on the exchange. This is not fatal:
		// the bracket still enters PROTECTED with both legs watched in
		// software by monitorProtection, rather than forcing an exit here.
		m.logger.Warn("protection could not be armed on exchange, falling back to software legs", "order", o.ID, "error", err)
		o.StopOrderID = ""
		o.TakeOrderID = ""
		o.NativeOCO = false
		o.StopArmed = false
		o.TakeArmed = false
		o.State = StateProtected
		return
	}

	o.StopOrderID = prot.stopOrderID
	o.TakeOrderID = prot.takeOrderID
	o.NativeOCO = prot.native
	o.StopArmed = prot.stopArmed
	o.TakeArmed = prot.takeArmed
	o.State = StateProtected
}

func (m *Monitor) monitorProtection(ctx context.Context, o *Order, pnl *PnL) {
	// Race resolution: native legs first, and within a category
	// stop-loss before take-profit, since a stop-loss protects capital
	// and a late take-profit check never causes a loss to compound.
	if o.StopArmed {
		status, err := m.client.OrderStatus(ctx, o.Symbol, o.StopOrderID)
		if err == nil && status.Status.IsFilled() {
			m.closeViaExchange(ctx, o, pnl, status, "stop_loss", o.TakeOrderID, o.TakeArmed)
			return
		}
	}
	if o.TakeArmed {
		status, err := m.client.OrderStatus(ctx, o.Symbol, o.TakeOrderID)
		if err == nil && status.Status.IsFilled() {
			m.closeViaExchange(ctx, o, pnl, status, "take_profit", o.StopOrderID, o.StopArmed)
			return
		}
	}

	price, ok := m.prices.Get(o.Symbol)
	if !ok || m.prices.IsStale(o.Symbol, m.tick) {
		if fresh := m.client.TickerPrice(ctx, o.Symbol); !fresh.IsZero() {
			price = fresh
			m.prices.Set(o.Symbol, price)
		}
	}
	if price.IsZero() {
		return
	}

	if !o.StopArmed && m.softwareStopTriggered(o, price) {
		m.closeViaSoftware(ctx, o, pnl, price, "software_stop_loss", o.TakeOrderID, o.TakeArmed)
		return
	}
	if !o.TakeArmed && m.softwareTakeTriggered(o, price) {
		m.closeViaSoftware(ctx, o, pnl, price, "software_take_profit", o.StopOrderID, o.StopArmed)
		return
	}
}

func (m *Monitor) softwareStopTriggered(o *Order, price decimal.Decimal) bool {
	if o.Side == types.SELL {
		return price.GreaterThanOrEqual(o.StopPrice)
	}
	return price.LessThanOrEqual(o.StopPrice)
}

func (m *Monitor) softwareTakeTriggered(o *Order, price decimal.Decimal) bool {
	if o.Side == types.SELL {
		return price.LessThanOrEqual(o.TakeProfitPrice)
	}
	return price.GreaterThanOrEqual(o.TakeProfitPrice)
}

func (m *Monitor) closeViaExchange(ctx context.Context, o *Order, pnl *PnL, filled *exchange.Order, reason, counterID string, counterArmed bool) {
	o.State = StateClosing
	if !o.NativeOCO && counterArmed && counterID != "" {
		if err := m.client.CancelOrder(ctx, o.Symbol, counterID); err != nil {
			m.logger.Warn("cancel counter leg failed", "order", o.ID, "error", err)
		}
	}
	pnl.OnExitFill(Fill{Timestamp: time.Now(), Side: o.exitSide(), Price: filled.Price, Qty: filled.Qty})
	o.ClosedAt = time.Now()
	o.CloseReason = reason
	o.State = StateClosed
}

func (m *Monitor) closeViaSoftware(ctx context.Context, o *Order, pnl *PnL, price decimal.Decimal, reason, counterID string, counterArmed bool) {
	o.State = StateClosing

	if counterArmed && counterID != "" {
		if err := m.client.CancelOrder(ctx, o.Symbol, counterID); err != nil {
			m.logger.Warn("cancel counter leg before software exit failed", "order", o.ID, "error", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(unlockDelay):
		}
	}

	order, err := m.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   o.Symbol,
		Side:     o.exitSide(),
		Type:     types.MARKET,
		Quantity: o.Quantity,
	})
	if err != nil {
		if errors.Is(err, exchange.ErrOversoldBlocked) {
			m.logger.Error("software market exit blocked (oversold), engaging liquidator", "order", o.ID, "error", err)
			closed, lerr := m.liquidator.Liquidate(ctx, o.Symbol, o.exitSide(), o.Quantity)
			o.ClosedAt = time.Now()
			if lerr != nil {
				o.State = StateFailed
				o.CloseReason = fmt.Sprintf("liquidation incomplete: %v (closed %s of %s)", lerr, closed, o.Quantity)
				return
			}
			pnl.OnExitFill(Fill{Timestamp: time.Now(), Side: o.exitSide(), Price: price, Qty: closed})
			o.CloseReason = reason + ": liquidated (oversold block)"
			o.State = StateClosed
			return
		}
		m.logger.Error("software market exit failed", "order", o.ID, "error", err)
		o.State = StateFailed
		o.CloseReason = fmt.Sprintf("software exit failed: %v", err)
		return
	}

	exitPrice := order.Price
	if exitPrice.IsZero() {
		exitPrice = price
	}
	pnl.OnExitFill(Fill{Timestamp: time.Now(), Side: o.exitSide(), Price: exitPrice, Qty: order.Qty})
	o.ClosedAt = time.Now()
	o.CloseReason = reason
	o.State = StateClosed
}

// teardown is called when the monitor's context is cancelled (shutdown).
// It attempts to leave the exchange in a safe state by cancelling any
// live legs rather than forcing an exit.
func (m *Monitor) teardown(ctx context.Context, o *Order) {
	switch o.State {
	case StateWaitingFill:
		_ = m.client.CancelOrder(ctx, o.Symbol, o.EntryOrderID)
	case StateProtected:
		unwindProtection(ctx, m.client, o.Symbol, protection{
			stopOrderID: o.StopOrderID,
			takeOrderID: o.TakeOrderID,
			native:      o.NativeOCO,
			stopArmed:   o.StopArmed,
			takeArmed:   o.TakeArmed,
		}, m.logger)
	}
}

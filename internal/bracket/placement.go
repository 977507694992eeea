package bracket

import (
	"context"
	"log/slog"

	"bracketbot/internal/exchange"
	"bracketbot/pkg/types"
)

// placer is the subset of exchange.Client the placement cascade depends on.
type placer interface {
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error)
	PlaceOCO(ctx context.Context, req exchange.OCORequest) (*exchange.OCOResponse, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// protection is the result of arming a bracket's protective legs: the
// exchange order ids for the stop-loss and take-profit sides, and whether
// they were placed as a single native OCO pair (in which case cancelling
// one cancels the other automatically) or as two independent orders.
type protection struct {
	stopOrderID   string
	takeOrderID   string
	native        bool
	stopArmed     bool
	takeArmed     bool
}

// armProtection attempts to place the stop-loss and take-profit legs for a
// filled bracket, falling back through progressively simpler order types.
// Losing one leg is not fatal: a partially armed bracket still monitors
// whichever leg succeeded, software-triggering the other. Losing both legs
// returns ErrProtectionFailed so the caller can fall back to watching both
// legs in software.
func armProtection(ctx context.Context, p placer, o *Order, logger *slog.Logger) (protection, error) {
	exitSide := types.SELL
	if o.Side == types.SELL {
		exitSide = types.BUY
	}

	// Stage 1: native OCO.
	oco, err := p.PlaceOCO(ctx, exchange.OCORequest{
		Symbol:               o.Symbol,
		Side:                 exitSide,
		Quantity:             o.Quantity,
		Price:                o.TakeProfitPrice,
		StopPrice:            o.StopPrice,
		StopLimitPrice:       o.StopPrice,
		StopLimitTimeInForce: types.GTC,
		ListClientOrderID:    o.ID,
	})
	if err == nil && len(oco.OrderIDs) == 2 {
		logger.Info("armed protection via native OCO", "order", o.ID)
		return protection{
			stopOrderID: oco.OrderIDs[0],
			takeOrderID: oco.OrderIDs[1],
			native:      true,
			stopArmed:   true,
			takeArmed:   true,
		}, nil
	}
	logger.Warn("native OCO unavailable, falling back to sequential legs", "order", o.ID, "error", err)

	// Stage 2: sequential STOP_LOSS_LIMIT + TAKE_PROFIT_LIMIT.
	var result protection
	stopOrder, stopErr := p.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:      o.Symbol,
		Side:        exitSide,
		Type:        types.StopLossLimit,
		TimeInForce: types.GTC,
		Quantity:    o.Quantity,
		Price:       o.StopPrice,
		StopPrice:   o.StopPrice,
	})
	if stopErr == nil {
		result.stopOrderID = stopOrder.OrderID
		result.stopArmed = true
	} else {
		// Stage 3: plain STOP_LOSS (market on trigger, no limit price).
		stopOrder, stopErr = p.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol:    o.Symbol,
			Side:      exitSide,
			Type:      types.StopLoss,
			Quantity:  o.Quantity,
			StopPrice: o.StopPrice,
		})
		if stopErr == nil {
			result.stopOrderID = stopOrder.OrderID
			result.stopArmed = true
		} else {
			logger.Warn("stop-loss leg could not be armed on the exchange, will monitor in software", "order", o.ID, "error", stopErr)
		}
	}

	takeOrder, takeErr := p.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:      o.Symbol,
		Side:        exitSide,
		Type:        types.TakeProfitLimit,
		TimeInForce: types.GTC,
		Quantity:    o.Quantity,
		Price:       o.TakeProfitPrice,
		StopPrice:   o.TakeProfitPrice,
	})
	if takeErr == nil {
		result.takeOrderID = takeOrder.OrderID
		result.takeArmed = true
	} else {
		takeOrder, takeErr = p.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol:    o.Symbol,
			Side:      exitSide,
			Type:      types.TakeProfit,
			Quantity:  o.Quantity,
			StopPrice: o.TakeProfitPrice,
		})
		if takeErr == nil {
			result.takeOrderID = takeOrder.OrderID
			result.takeArmed = true
		} else {
			logger.Warn("take-profit leg could not be armed on the exchange, will monitor in software", "order", o.ID, "error", takeErr)
		}
	}

	if !result.stopArmed && !result.takeArmed {
		return protection{}, ErrProtectionFailed
	}
	return result, nil
}

// unwindProtection cancels whichever protective legs are still live. Used
// once one leg has filled (cancel the other) or when the bracket is being
// torn down.
func unwindProtection(ctx context.Context, p placer, symbol string, prot protection, logger *slog.Logger) {
	if prot.native {
		// Native OCO cancels both legs together; cancelling either id
		// removes the pair.
		if prot.stopOrderID != "" {
			if err := p.CancelOrder(ctx, symbol, prot.stopOrderID); err != nil {
				logger.Warn("cancel native OCO pair failed", "error", err)
			}
		}
		return
	}
	if prot.stopArmed && prot.stopOrderID != "" {
		if err := p.CancelOrder(ctx, symbol, prot.stopOrderID); err != nil {
			logger.Warn("cancel stop-loss leg failed", "error", err)
		}
	}
	if prot.takeArmed && prot.takeOrderID != "" {
		if err := p.CancelOrder(ctx, symbol, prot.takeOrderID); err != nil {
			logger.Warn("cancel take-profit leg failed", "error", err)
		}
	}
}

package catalog

import "errors"

var (
	// ErrSymbolUnknown is returned when the exchange reports no metadata
	// for a requested symbol at all.
	ErrSymbolUnknown = errors.New("catalog: symbol unknown")
	// ErrSymbolNotTradable is returned when a symbol exists but is halted,
	// delisted, or otherwise not open for spot trading.
	ErrSymbolNotTradable = errors.New("catalog: symbol not tradable")
	// ErrQuantityOutOfRange is returned when a quantity, after flooring to
	// the symbol's lot-size step, falls outside [MinQty, MaxQty] or floors
	// to zero.
	ErrQuantityOutOfRange = errors.New("catalog: quantity out of range")
)

// Package types holds data shared across the bracket engine: exchange enums,
// symbol metadata, and the order status taxonomy returned by MEXC.
package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderType selects the MEXC order type for a single placement call.
type OrderType string

const (
	LIMIT           OrderType = "LIMIT"
	MARKET          OrderType = "MARKET"
	StopLoss        OrderType = "STOP_LOSS"
	StopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	TakeProfit      OrderType = "TAKE_PROFIT"
	TakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
)

// TimeInForce controls how long a LIMIT order rests before expiring.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// OrderStatus is a tagged variant over MEXC's order status strings. Unknown
// preserves the raw value so callers can log it instead of crashing on a
// status the exchange adds later.
type OrderStatus struct {
	kind string
	raw  string
}

var (
	StatusNew             = OrderStatus{kind: "NEW"}
	StatusPartiallyFilled = OrderStatus{kind: "PARTIALLY_FILLED"}
	StatusFilled          = OrderStatus{kind: "FILLED"}
	StatusCanceled        = OrderStatus{kind: "CANCELED"}
	StatusRejected        = OrderStatus{kind: "REJECTED"}
	StatusExpired         = OrderStatus{kind: "EXPIRED"}
)

// ParseOrderStatus converts a raw exchange status string into a tagged
// OrderStatus, falling back to an Unknown variant that retains the raw text.
func ParseOrderStatus(raw string) OrderStatus {
	switch strings.ToUpper(raw) {
	case "NEW":
		return StatusNew
	case "PARTIALLY_FILLED":
		return StatusPartiallyFilled
	case "FILLED":
		return StatusFilled
	case "CANCELED", "CANCELLED":
		return StatusCanceled
	case "REJECTED":
		return StatusRejected
	case "EXPIRED":
		return StatusExpired
	default:
		return OrderStatus{kind: "UNKNOWN", raw: raw}
	}
}

// IsTerminal reports whether the status will never transition further.
func (s OrderStatus) IsTerminal() bool {
	switch s.kind {
	case "FILLED", "CANCELED", "REJECTED", "EXPIRED":
		return true
	default:
		return false
	}
}

// IsFilled reports whether the order fully executed.
func (s OrderStatus) IsFilled() bool {
	return s.kind == "FILLED"
}

// IsDeadWithoutFill reports whether the order terminated without executing —
// the CANCELED/REJECTED/EXPIRED trio from order_status.
func (s OrderStatus) IsDeadWithoutFill() bool {
	switch s.kind {
	case "CANCELED", "REJECTED", "EXPIRED":
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	if s.kind == "UNKNOWN" {
		return "UNKNOWN(" + s.raw + ")"
	}
	return s.kind
}

// SymbolSpec describes a tradable symbol's lot/tick rules, as served by
// exchangeInfo and cached by the symbol catalog.
type SymbolSpec struct {
	Symbol      string
	Status      string
	SpotAllowed bool
	BaseAsset   string
	QuoteAsset  string
	StepSize    decimal.Decimal
	TickSize    decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
}

// IsTradable requires an active status and spot permission, per the
// catalog's validate() contract.
func (s SymbolSpec) IsTradable() bool {
	switch strings.ToUpper(s.Status) {
	case "TRADING", "ENABLED", "ACTIVE", "1":
		return s.SpotAllowed
	default:
		return false
	}
}

// Credentials holds the API key/secret pair used to sign every private
// request. Immutable for the process lifetime; never logged.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Balance is one entry of the account() balances list.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Kline is one candle from /api/v3/klines, positionally decoded.
type Kline struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

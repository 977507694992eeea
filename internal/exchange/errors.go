package exchange

import (
	"fmt"
	"strings"
)

// Sentinel error kinds surfaced by the exchange client and the components
// built on top of it. Callers match with errors.Is, never string comparison.
var (
	ErrSymbolNotSupported  = fmt.Errorf("exchange: symbol not supported")
	ErrQuantityOutOfRange  = fmt.Errorf("exchange: quantity out of range")
	ErrInsufficientBalance = fmt.Errorf("exchange: insufficient balance")
	ErrOversoldBlocked     = fmt.Errorf("exchange: oversold block")
	ErrRateLimited         = fmt.Errorf("exchange: rate limited")
)

// serverCode is the subset of MEXC error codes this client translates.
const (
	codeSymbolNotSupported = 10007
	codeOversold           = 30005
)

// ExchangeError wraps a non-2xx HTTP response: the status code, the parsed
// server error code (0 if unparsable), and the raw body for diagnostics.
type ExchangeError struct {
	StatusCode int
	ServerCode int
	Message    string
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error: http=%d code=%d msg=%q", e.StatusCode, e.ServerCode, e.Message)
}

// Unwrap maps a subset of known server codes/messages onto the sentinel
// errors above so errors.Is works without the caller parsing ServerCode
// itself. Unrecognized codes unwrap to nil (ExchangeOther: surfaced as-is).
func (e *ExchangeError) Unwrap() error {
	msg := strings.ToLower(e.Message)
	switch {
	case e.ServerCode == codeSymbolNotSupported:
		return ErrSymbolNotSupported
	case e.ServerCode == codeOversold || strings.Contains(msg, "oversold"):
		return ErrOversoldBlocked
	case strings.Contains(msg, "insufficient balance"):
		return ErrInsufficientBalance
	default:
		return nil
	}
}

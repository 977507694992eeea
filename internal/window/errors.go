package window

import "errors"

var (
	// ErrOutsideTradingWindow is returned when a bracket is submitted
	// outside every configured trading window.
	ErrOutsideTradingWindow = errors.New("window: outside configured trading window")
	// ErrDailyQuotaExceeded is returned when the daily order quota has
	// already been reached for the current local day.
	ErrDailyQuotaExceeded = errors.New("window: daily order quota exceeded")
)

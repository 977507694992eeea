// Package window gates bracket submission to configured trading windows and
// enforces a daily order quota that resets at local midnight in the first
// configured window's timezone (UTC when no windows are configured).
package window

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bracketbot/internal/config"
)

// clock formats one HH:MM trading window, anchored to an IANA timezone.
type clock struct {
	startHour, startMin int
	endHour, endMin     int
	loc                 *time.Location
	raw                 config.WindowConfig
}

// Gate enforces trading windows and the daily order quota. Both checks are
// mutex-protected since SubmitBracket may be called from more than one
// goroutine.
type Gate struct {
	cfg    config.TradingConfig
	logger *slog.Logger
	clocks []clock

	mu          sync.Mutex
	ordersToday int
	quotaDate   string // YYYY-MM-DD in the first window's timezone, or UTC if no windows
}

// New builds a Gate from the trading config's window list. An empty
// window list means trading is allowed at all times.
func New(cfg config.TradingConfig, logger *slog.Logger) (*Gate, error) {
	clocks := make([]clock, 0, len(cfg.Windows))
	for _, w := range cfg.Windows {
		c, err := parseWindow(w)
		if err != nil {
			return nil, err
		}
		clocks = append(clocks, c)
	}

	return &Gate{
		cfg:    cfg,
		logger: logger.With("component", "window"),
		clocks: clocks,
	}, nil
}

func parseWindow(w config.WindowConfig) (clock, error) {
	loc, err := time.LoadLocation(w.Tz)
	if err != nil {
		return clock{}, fmt.Errorf("load timezone %q: %w", w.Tz, err)
	}
	sh, sm, err := parseHHMM(w.Start)
	if err != nil {
		return clock{}, fmt.Errorf("parse window start %q: %w", w.Start, err)
	}
	eh, em, err := parseHHMM(w.End)
	if err != nil {
		return clock{}, fmt.Errorf("parse window end %q: %w", w.End, err)
	}
	return clock{startHour: sh, startMin: sm, endHour: eh, endMin: em, loc: loc, raw: w}, nil
}

func parseHHMM(s string) (hour, min int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &min); err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("out of range HH:MM %q", s)
	}
	return hour, min, nil
}

// IsOpen reports whether now falls inside any configured trading window.
// A window with no clocks configured is always open. Each window's bounds
// are evaluated in its own timezone, and an end time earlier in the day
// than the start time wraps past midnight (e.g. 22:00-06:00).
func (g *Gate) IsOpen(now time.Time) bool {
	if len(g.clocks) == 0 {
		return true
	}
	for _, c := range g.clocks {
		if c.contains(now) {
			return true
		}
	}
	return false
}

func (c clock) contains(now time.Time) bool {
	local := now.In(c.loc)
	minutesNow := local.Hour()*60 + local.Minute()
	start := c.startHour*60 + c.startMin
	end := c.endHour*60 + c.endMin

	if start <= end {
		return minutesNow >= start && minutesNow <= end
	}
	// Overnight window: open from start through midnight, then midnight
	// through end.
	return minutesNow >= start || minutesNow <= end
}

// CheckQuota reports whether one more order may be submitted today,
// resetting the counter if the quota's reference day has rolled over.
func (g *Gate) CheckQuota(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)

	if g.ordersToday >= g.cfg.MaxOrdersDay {
		return ErrDailyQuotaExceeded
	}
	return nil
}

// RecordOrder increments today's order count. Call only after a bracket
// submission has actually been accepted for placement.
func (g *Gate) RecordOrder(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)
	g.ordersToday++
}

func (g *Gate) rolloverLocked(now time.Time) {
	loc := time.UTC
	if len(g.clocks) > 0 {
		loc = g.clocks[0].loc
	}
	today := now.In(loc).Format("2006-01-02")
	if today != g.quotaDate {
		g.quotaDate = today
		g.ordersToday = 0
	}
}

// RequireOpen returns ErrOutsideTradingWindow if now is outside every
// configured window.
func (g *Gate) RequireOpen(now time.Time) error {
	if !g.IsOpen(now) {
		return ErrOutsideTradingWindow
	}
	return nil
}

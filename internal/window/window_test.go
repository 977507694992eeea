package window

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"bracketbot/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func overnightGate(t *testing.T) *Gate {
	t.Helper()
	cfg := config.TradingConfig{
		Windows: []config.WindowConfig{{Start: "22:00", End: "06:00", Tz: "UTC"}},
	}
	g, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func utcAt(hour, min int) time.Time {
	return time.Date(2026, 7, 31, hour, min, 0, 0, time.UTC)
}

func TestIsOpenOvernightWindowBoundaries(t *testing.T) {
	t.Parallel()
	g := overnightGate(t)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"just before open", utcAt(21, 59), false},
		{"at open", utcAt(22, 0), true},
		{"just before close", utcAt(5, 59), true},
		{"at close", utcAt(6, 0), true},
		{"just after close", utcAt(6, 1), false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := g.IsOpen(tc.at); got != tc.want {
				t.Errorf("IsOpen(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestIsOpenNoWindowsAlwaysOpen(t *testing.T) {
	t.Parallel()
	g, err := New(config.TradingConfig{}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !g.IsOpen(utcAt(3, 0)) {
		t.Error("IsOpen with no configured windows should always be true")
	}
}

func TestRequireOpenReturnsSentinel(t *testing.T) {
	t.Parallel()
	g := overnightGate(t)

	if err := g.RequireOpen(utcAt(12, 0)); !errors.Is(err, ErrOutsideTradingWindow) {
		t.Errorf("err = %v, want ErrOutsideTradingWindow", err)
	}
	if err := g.RequireOpen(utcAt(23, 0)); err != nil {
		t.Errorf("RequireOpen during window: %v", err)
	}
}

func TestCheckQuotaEnforcesLimit(t *testing.T) {
	t.Parallel()
	cfg := config.TradingConfig{MaxOrdersDay: 2}
	g, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := utcAt(10, 0)
	for i := 0; i < 2; i++ {
		if err := g.CheckQuota(now); err != nil {
			t.Fatalf("CheckQuota(%d): %v", i, err)
		}
		g.RecordOrder(now)
	}

	if err := g.CheckQuota(now); !errors.Is(err, ErrDailyQuotaExceeded) {
		t.Errorf("err = %v, want ErrDailyQuotaExceeded", err)
	}
}

func TestCheckQuotaResetsOnNewDay(t *testing.T) {
	t.Parallel()
	cfg := config.TradingConfig{MaxOrdersDay: 1}
	g, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	day1 := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	g.RecordOrder(day1)
	if err := g.CheckQuota(day1); !errors.Is(err, ErrDailyQuotaExceeded) {
		t.Fatalf("expected quota exceeded on day1, got %v", err)
	}

	day2 := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	if err := g.CheckQuota(day2); err != nil {
		t.Errorf("CheckQuota on new day should reset, got %v", err)
	}
}

func TestParseWindowRejectsInvalidTimezone(t *testing.T) {
	t.Parallel()
	cfg := config.TradingConfig{
		Windows: []config.WindowConfig{{Start: "09:00", End: "17:00", Tz: "Not/AZone"}},
	}
	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

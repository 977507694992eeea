package catalog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"bracketbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeInfoClient struct {
	calls int
	specs []types.SymbolSpec
	err   error
}

func (f *fakeInfoClient) ExchangeInfo(ctx context.Context, symbol string) ([]types.SymbolSpec, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.specs, nil
}

func tradableSpec() types.SymbolSpec {
	return types.SymbolSpec{
		Symbol:       "XRPUSDT",
		Status:       "TRADING",
		SpotAllowed:  true,
		BaseAsset:    "XRP",
		QuoteAsset:   "USDT",
		StepSize:     decimal.RequireFromString("0.1"),
		TickSize:     decimal.RequireFromString("0.0001"),
		MinQty:       decimal.RequireFromString("1"),
		MaxQty:       decimal.RequireFromString("1000000"),
	}
}

func TestResolveNormalizesSymbol(t *testing.T) {
	t.Parallel()
	fc := &fakeInfoClient{specs: []types.SymbolSpec{tradableSpec()}}
	c := New(fc, testLogger())

	spec, err := c.Resolve(context.Background(), "  xrpusdt  ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if spec.Symbol != "XRPUSDT" {
		t.Errorf("Symbol = %q, want XRPUSDT", spec.Symbol)
	}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	t.Parallel()
	fc := &fakeInfoClient{specs: []types.SymbolSpec{tradableSpec()}}
	c := New(fc, testLogger())

	if _, err := c.Resolve(context.Background(), "XRPUSDT"); err != nil {
		t.Fatalf("Resolve (1st): %v", err)
	}
	if _, err := c.Resolve(context.Background(), "XRPUSDT"); err != nil {
		t.Fatalf("Resolve (2nd): %v", err)
	}
	if fc.calls != 1 {
		t.Errorf("ExchangeInfo calls = %d, want 1 (cached)", fc.calls)
	}
}

func TestResolveUnknownSymbol(t *testing.T) {
	t.Parallel()
	fc := &fakeInfoClient{specs: nil}
	c := New(fc, testLogger())

	_, err := c.Resolve(context.Background(), "NOPEUSDT")
	if !errors.Is(err, ErrSymbolUnknown) {
		t.Errorf("err = %v, want ErrSymbolUnknown", err)
	}
}

func TestValidateRejectsHaltedSymbol(t *testing.T) {
	t.Parallel()
	spec := tradableSpec()
	spec.Status = "HALT"
	fc := &fakeInfoClient{specs: []types.SymbolSpec{spec}}
	c := New(fc, testLogger())

	_, err := c.Validate(context.Background(), "XRPUSDT")
	if !errors.Is(err, ErrSymbolNotTradable) {
		t.Errorf("err = %v, want ErrSymbolNotTradable", err)
	}
}

func TestFormatQuantityFloorsToStep(t *testing.T) {
	t.Parallel()
	spec := tradableSpec()

	got, err := FormatQuantity(decimal.RequireFromString("12.37"), spec)
	if err != nil {
		t.Fatalf("FormatQuantity: %v", err)
	}
	want := decimal.RequireFromString("12.3")
	if !got.Equal(want) {
		t.Errorf("FormatQuantity = %v, want %v", got, want)
	}
}

func TestFormatQuantityUsesHeuristicWhenStepMissing(t *testing.T) {
	t.Parallel()
	spec := tradableSpec()
	spec.StepSize = decimal.Zero
	spec.BaseAsset = "BTC"
	spec.MinQty = decimal.RequireFromString("0.0001")

	got, err := FormatQuantity(decimal.RequireFromString("0.0057"), spec)
	if err != nil {
		t.Fatalf("FormatQuantity: %v", err)
	}
	want := decimal.RequireFromString("0.005")
	if !got.Equal(want) {
		t.Errorf("FormatQuantity = %v, want %v", got, want)
	}
}

func TestFormatQuantityUsesHeuristicWhenStepImplausiblySmall(t *testing.T) {
	t.Parallel()
	spec := tradableSpec()
	spec.StepSize = decimal.RequireFromString("0.0000001")
	spec.BaseAsset = "XRP"
	spec.MinQty = decimal.RequireFromString("0.1")

	got, err := FormatQuantity(decimal.RequireFromString("12.37"), spec)
	if err != nil {
		t.Fatalf("FormatQuantity: %v", err)
	}
	want := decimal.RequireFromString("12.3")
	if !got.Equal(want) {
		t.Errorf("FormatQuantity = %v, want %v (heuristic step, not the implausible exchange value)", got, want)
	}
}

func TestFormatQuantityBelowMinIsOutOfRange(t *testing.T) {
	t.Parallel()
	spec := tradableSpec()
	spec.MinQty = decimal.RequireFromString("5")

	_, err := FormatQuantity(decimal.RequireFromString("0.5"), spec)
	if !errors.Is(err, ErrQuantityOutOfRange) {
		t.Errorf("err = %v, want ErrQuantityOutOfRange", err)
	}
}

func TestFormatQuantityAboveMaxIsOutOfRange(t *testing.T) {
	t.Parallel()
	spec := tradableSpec()
	spec.MaxQty = decimal.RequireFromString("10")

	_, err := FormatQuantity(decimal.RequireFromString("50"), spec)
	if !errors.Is(err, ErrQuantityOutOfRange) {
		t.Errorf("err = %v, want ErrQuantityOutOfRange", err)
	}
}

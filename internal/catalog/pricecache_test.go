package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceCacheSetGet(t *testing.T) {
	t.Parallel()
	c := NewPriceCache()

	if _, ok := c.Get("XRPUSDT"); ok {
		t.Fatal("Get on empty cache returned ok=true")
	}

	price := decimal.RequireFromString("1.2345")
	c.Set("XRPUSDT", price)

	got, ok := c.Get("XRPUSDT")
	if !ok {
		t.Fatal("Get after Set returned ok=false")
	}
	if !got.Equal(price) {
		t.Errorf("Get = %v, want %v", got, price)
	}
}

func TestPriceCacheIsStale(t *testing.T) {
	t.Parallel()
	c := NewPriceCache()

	if !c.IsStale("XRPUSDT", time.Minute) {
		t.Error("IsStale on a symbol never set should be true")
	}

	c.Set("XRPUSDT", decimal.RequireFromString("1"))
	if c.IsStale("XRPUSDT", time.Minute) {
		t.Error("IsStale immediately after Set should be false")
	}
	if !c.IsStale("XRPUSDT", 0) {
		t.Error("IsStale with zero maxAge should be true")
	}
}

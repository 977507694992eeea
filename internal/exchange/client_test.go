package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"bracketbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newDryRunClient() *Client {
	signer := NewSigner(types.Credentials{APIKey: "key", SecretKey: "secret"})
	return NewClient("https://api.mexc.com", 10, signer, true, testLogger())
}

func TestDryRunPlaceOrder(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	order, err := c.PlaceOrder(context.Background(), OrderRequest{
		Symbol:   "XRPUSDT",
		Side:     types.BUY,
		Type:     types.LIMIT,
		Quantity: decimal.NewFromFloat(5),
		Price:    decimal.NewFromFloat(1.10),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.OrderID == "" {
		t.Errorf("expected a synthetic order id in dry-run")
	}
	if order.Status != types.StatusNew {
		t.Errorf("Status = %v, want NEW", order.Status)
	}
}

func TestDryRunCancelOrderIsNoop(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.CancelOrder(context.Background(), "XRPUSDT", "1"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
}

func TestPingSuccess(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50, NewSigner(types.Credentials{}), false, testLogger())
	ok, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !ok {
		t.Errorf("Ping() = false, want true")
	}
}

func TestTickerPriceReturnsZeroOnFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50, NewSigner(types.Credentials{}), false, testLogger())
	price := c.TickerPrice(context.Background(), "XRPUSDT")
	if !price.IsZero() {
		t.Errorf("TickerPrice on failure = %v, want 0 sentinel", price)
	}
}

func TestTickerPriceParsesBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"price": "1.2345"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50, NewSigner(types.Credentials{}), false, testLogger())
	price := c.TickerPrice(context.Background(), "XRPUSDT")
	want := decimal.RequireFromString("1.2345")
	if !price.Equal(want) {
		t.Errorf("TickerPrice = %v, want %v", price, want)
	}
}

func TestCheckStatusTranslatesOversold(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"code": 30005, "msg": "Oversold"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50, NewSigner(types.Credentials{APIKey: "k", SecretKey: "s"}), false, testLogger())
	_, err := c.OrderStatus(context.Background(), "XRPUSDT", "1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrOversoldBlocked) {
		t.Errorf("expected ErrOversoldBlocked in chain, got %v", err)
	}
}

// Package exchange implements the MEXC spot REST client.
//
// Client wraps a resty HTTP client with a global rate limiter (RateLimiter),
// request signing (Signer), and MEXC error-code translation:
//   - Ping / ServerTime / ExchangeInfo / TickerPrice / Klines — public, unsigned
//   - Account / PlaceOrder / PlaceOCO / CancelOrder / OrderStatus /
//     OpenOrders / AllOrders — signed, require credentials
//
// Every request acquires a rate-limiter token before it is sent. HTTP 429
// is retried once after a 1s backoff; any other non-2xx status is translated
// into an *ExchangeError.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"bracketbot/pkg/types"
)

// Client is the MEXC spot REST API client.
type Client struct {
	http   *resty.Client
	signer *Signer
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting, 429 retry, and a 30s
// transport timeout.
func NewClient(baseURL string, rps float64, signer *Signer, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(1).
		SetRetryWaitTime(1 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusTooManyRequests
		})

	return &Client{
		http:   httpClient,
		signer: signer,
		rl:     NewRateLimiter(rps),
		dryRun: dryRun,
		logger: logger,
	}
}

// Ping returns true on HTTP 200 from /api/v3/ping.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return false, err
	}
	resp, err := c.http.R().SetContext(ctx).Get("/api/v3/ping")
	if err != nil {
		return false, fmt.Errorf("ping: %w", err)
	}
	return resp.StatusCode() == http.StatusOK, nil
}

// ServerTime returns the exchange's current time.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return time.Time{}, err
	}
	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get("/api/v3/time")
	if err != nil {
		return time.Time{}, fmt.Errorf("server time: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(result.ServerTime), nil
}

type exchangeInfoSymbol struct {
	Symbol                string `json:"symbol"`
	Status                string `json:"status"`
	BaseAsset             string `json:"baseAsset"`
	QuoteAsset            string `json:"quoteAsset"`
	IsSpotTradingAllowed  bool   `json:"isSpotTradingAllowed"`
	BaseSizePrecision     string `json:"baseSizePrecision"`
	QuotePrecision        int    `json:"quotePrecision"`
	BaseAssetPrecision    int    `json:"baseAssetPrecision"`
	MaxQuoteAmount        string `json:"maxQuoteAmount"`
	QuoteAmountPrecision  string `json:"quoteAmountPrecision"`
}

// ExchangeInfo fetches symbol metadata. symbol may be empty to fetch every
// symbol as a degraded-mode fallback; callers must tolerate an empty result
// slice either way.
func (c *Client) ExchangeInfo(ctx context.Context, symbol string) ([]types.SymbolSpec, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Symbols []exchangeInfoSymbol `json:"symbols"`
	}
	req := c.http.R().SetContext(ctx).SetResult(&result)
	if symbol != "" {
		req = req.SetQueryParam("symbol", symbol)
	}
	resp, err := req.Get("/api/v3/exchangeInfo")
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	specs := make([]types.SymbolSpec, 0, len(result.Symbols))
	for _, s := range result.Symbols {
		step, err := decimal.NewFromString(s.BaseSizePrecision)
		if err != nil {
			step = decimal.Zero
		}
		specs = append(specs, types.SymbolSpec{
			Symbol:      s.Symbol,
			Status:      s.Status,
			SpotAllowed: s.IsSpotTradingAllowed,
			BaseAsset:   s.BaseAsset,
			QuoteAsset:  s.QuoteAsset,
			StepSize:    step,
			TickSize:    decimal.New(1, int32(-s.QuotePrecision)),
			MinQty:      decimal.Zero,
			MaxQty:      decimal.Zero,
		})
	}
	return specs, nil
}

// TickerPrice returns the last traded price for symbol. On any failure it
// returns the documented sentinel 0; callers must treat 0 as "unknown",
// never as a real price.
func (c *Client) TickerPrice(ctx context.Context, symbol string) decimal.Decimal {
	if err := c.rl.Wait(ctx); err != nil {
		return decimal.Zero
	}
	var result struct {
		Price string `json:"price"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get("/api/v3/ticker/price")
	if err != nil || resp.StatusCode() != http.StatusOK {
		return decimal.Zero
	}
	price, err := decimal.NewFromString(result.Price)
	if err != nil {
		return decimal.Zero
	}
	return price
}

// Klines fetches candles for symbol. Malformed entries are skipped rather
// than failing the whole call.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	var raw [][]interface{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&raw).
		Get("/api/v3/klines")
	if err != nil {
		return nil, fmt.Errorf("klines: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	klines := make([]types.Kline, 0, len(raw))
	for _, entry := range raw {
		k, ok := parseKline(entry)
		if !ok {
			continue
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKline(entry []interface{}) (types.Kline, bool) {
	if len(entry) < 6 {
		return types.Kline{}, false
	}
	openMs, ok := entry[0].(float64)
	if !ok {
		return types.Kline{}, false
	}
	o, oOK := decimalFromAny(entry[1])
	h, hOK := decimalFromAny(entry[2])
	l, lOK := decimalFromAny(entry[3])
	cl, clOK := decimalFromAny(entry[4])
	v, vOK := decimalFromAny(entry[5])
	if !oOK || !hOK || !lOK || !clOK || !vOK {
		return types.Kline{}, false
	}
	return types.Kline{
		OpenTime: time.UnixMilli(int64(openMs)),
		Open:     o,
		High:     h,
		Low:      l,
		Close:    cl,
		Volume:   v,
	}, true
}

func decimalFromAny(v interface{}) (decimal.Decimal, bool) {
	s, ok := v.(string)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Account fetches the signed balances list.
func (c *Client) Account(ctx context.Context) ([]types.Balance, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	var result struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	resp, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &result)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	balances := make([]types.Balance, 0, len(result.Balances))
	for _, b := range result.Balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		balances = append(balances, types.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return balances, nil
}

// OrderRequest is the parameter set for a single place_order call. Fields
// left as their zero value are omitted from the request.
type OrderRequest struct {
	Symbol      string
	Side        types.Side
	Type        types.OrderType
	TimeInForce types.TimeInForce
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
}

// Order is the common shape returned by place_order, order_status and the
// open/all-orders listing endpoints.
type Order struct {
	OrderID string
	Symbol  string
	Side    types.Side
	Type    types.OrderType
	Status  types.OrderStatus
	Price   decimal.Decimal
	Qty     decimal.Decimal
}

type orderWire struct {
	OrderID       string `json:"orderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
}

func (o orderWire) toOrder() Order {
	price, _ := decimal.NewFromString(o.Price)
	qty, _ := decimal.NewFromString(o.OrigQty)
	return Order{
		OrderID: o.OrderID,
		Symbol:  o.Symbol,
		Side:    types.Side(o.Side),
		Type:    types.OrderType(o.Type),
		Status:  types.ParseOrderStatus(o.Status),
		Price:   price,
		Qty:     qty,
	}
}

// PlaceOrder submits a signed order. The parameter schema varies by Type:
// LIMIT carries timeInForce+quantity+price; STOP_LOSS_LIMIT and
// TAKE_PROFIT_LIMIT add stopPrice; MARKET needs only quantity.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place order", "symbol", req.Symbol, "type", req.Type, "side", req.Side)
		return &Order{
			OrderID: "dry-run-" + strconv.FormatInt(time.Now().UnixNano(), 10),
			Symbol:  req.Symbol,
			Side:    req.Side,
			Type:    req.Type,
			Status:  types.StatusNew,
			Price:   req.Price,
			Qty:     req.Quantity,
		}, nil
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Quantity.String())

	switch req.Type {
	case types.LIMIT:
		params.Set("timeInForce", string(timeInForceOrDefault(req.TimeInForce)))
		params.Set("price", req.Price.String())
	case types.StopLossLimit, types.TakeProfitLimit:
		params.Set("timeInForce", string(timeInForceOrDefault(req.TimeInForce)))
		params.Set("price", req.Price.String())
		params.Set("stopPrice", req.StopPrice.String())
	case types.StopLoss, types.TakeProfit:
		params.Set("stopPrice", req.StopPrice.String())
	case types.MARKET:
		// quantity only
	}

	var wire orderWire
	resp, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params, &wire)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	order := wire.toOrder()
	return &order, nil
}

func timeInForceOrDefault(tif types.TimeInForce) types.TimeInForce {
	if tif == "" {
		return types.GTC
	}
	return tif
}

// OCORequest is the parameter set for a native one-cancels-other placement
// covering an entry-adjacent SL pair.
type OCORequest struct {
	Symbol               string
	Side                 types.Side
	Quantity             decimal.Decimal
	Price                decimal.Decimal
	StopPrice            decimal.Decimal
	StopLimitPrice       decimal.Decimal
	StopLimitTimeInForce types.TimeInForce
	ListClientOrderID    string
}

// OCOResponse carries the two exchange order ids produced by a successful
// OCO placement.
type OCOResponse struct {
	ListClientOrderID string
	OrderIDs          []string
}

// PlaceOCO submits a native OCO order. This path is best-effort; callers
// are expected to fall back to sequential placement on failure.
func (c *Client) PlaceOCO(ctx context.Context, req OCORequest) (*OCOResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place OCO", "symbol", req.Symbol)
		return &OCOResponse{ListClientOrderID: req.ListClientOrderID, OrderIDs: []string{"dry-run-oco"}}, nil
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("quantity", req.Quantity.String())
	params.Set("price", req.Price.String())
	params.Set("stopPrice", req.StopPrice.String())
	params.Set("stopLimitPrice", req.StopLimitPrice.String())
	params.Set("stopLimitTimeInForce", string(timeInForceOrDefault(req.StopLimitTimeInForce)))
	params.Set("listClientOrderId", req.ListClientOrderID)

	var result struct {
		ListClientOrderID string   `json:"listClientOrderId"`
		OrderIDs          []string `json:"orderIds"`
	}
	resp, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order/oco", params, &result)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return &OCOResponse{ListClientOrderID: result.ListClientOrderID, OrderIDs: result.OrderIDs}, nil
}

// CancelOrder cancels a single order by exchange id. Canceling an order
// that no longer exists on the exchange (already filled, already
// canceled) is treated as success, keeping cancellation idempotent.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "symbol", symbol, "order_id", orderID)
		return nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	resp, err := c.doSigned(ctx, http.MethodDelete, "/api/v3/order", params, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp)
}

// OrderStatus fetches the current state of one order. In dry-run mode no
// request is sent and every order is reported as FILLED.
func (c *Client) OrderStatus(ctx context.Context, symbol, orderID string) (*Order, error) {
	if c.dryRun {
		return &Order{OrderID: orderID, Symbol: symbol, Status: types.StatusFilled}, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var wire orderWire
	resp, err := c.doSigned(ctx, http.MethodGet, "/api/v3/order", params, &wire)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	order := wire.toOrder()
	return &order, nil
}

// OpenOrders lists currently open orders for symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var wire []orderWire
	resp, err := c.doSigned(ctx, http.MethodGet, "/api/v3/openOrders", params, &wire)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return toOrders(wire), nil
}

// AllOrders lists every order (any terminal state included) for symbol.
func (c *Client) AllOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var wire []orderWire
	resp, err := c.doSigned(ctx, http.MethodGet, "/api/v3/allOrders", params, &wire)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return toOrders(wire), nil
}

func toOrders(wire []orderWire) []Order {
	orders := make([]Order, 0, len(wire))
	for _, w := range wire {
		orders = append(orders, w.toOrder())
	}
	return orders
}

// doSigned runs params through the Signer, waits on the rate limiter, and
// issues the request with the signed query string and the X-MEXC-APIKEY
// header. result may be nil when the caller doesn't need the parsed body.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values, result interface{}) (*resty.Response, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	query := c.signer.Sign(params, time.Now())
	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-MEXC-APIKEY", c.signer.APIKey()).
		SetQueryString(query)
	if result != nil {
		req = req.SetResult(result)
	}

	var resp *resty.Response
	var err error
	switch method {
	case http.MethodGet:
		resp, err = req.Get(path)
	case http.MethodPost:
		resp, err = req.Post(path)
	case http.MethodDelete:
		resp, err = req.Delete(path)
	default:
		return nil, fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// checkStatus translates a non-2xx resty response into an error: HTTP 429
// becomes ErrRateLimited, anything else an *ExchangeError, parsing the
// MEXC {code, msg} body when present.
func checkStatus(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(resp.Body(), &body)

	return &ExchangeError{
		StatusCode: resp.StatusCode(),
		ServerCode: body.Code,
		Message:    body.Msg,
		Body:       resp.String(),
	}
}

package bittrex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/exchangegate/internal/crypto"
	"github.com/alanyoungcy/exchangegate/internal/domain"
)

const (
	DefaultBaseURL  = "https://bittrex.com/api/v1.1"
	DefaultTicksURL = "https://bittrex.com/Api/v2.0"
)

// APIError is a well-formed response with success=false. Message is the
// exchange's reason code, e.g. "INSUFFICIENT_FUNDS".
type APIError struct {
	Op      string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bittrex: %s: %s", e.Op, e.Message)
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL   string
	TicksURL  string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client is the REST client for the Bittrex v1.1 API plus the public v2 tick
// endpoint. Account and market calls are signed with HMAC-SHA512.
type Client struct {
	baseURL    string
	ticksURL   string
	auth       *crypto.HMACAuth
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TicksURL == "" {
		cfg.TicksURL = DefaultTicksURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		ticksURL:   strings.TrimRight(cfg.TicksURL, "/"),
		auth:       &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(slog.String("component", "bittrex_client")),
	}
}

// GetBalances returns every wallet balance.
func (c *Client) GetBalances(ctx context.Context) ([]balanceDTO, error) {
	res, err := c.call(ctx, "getbalances", c.baseURL+"/account/getbalances", nil, true)
	if err != nil {
		return nil, err
	}
	var out []balanceDTO
	if err := decodeList(res, &out); err != nil {
		return nil, fmt.Errorf("decode balances: %w", err)
	}
	for i := range out {
		if err := out[i].validate(); err != nil {
			return nil, fmt.Errorf("decode balances: %w", err)
		}
	}
	return out, nil
}

// BuyLimit places a limit buy and returns the order uuid.
func (c *Client) BuyLimit(ctx context.Context, market string, quantity, rate decimal.Decimal) (string, error) {
	return c.limit(ctx, "buylimit", market, quantity, rate)
}

// SellLimit places a limit sell and returns the order uuid.
func (c *Client) SellLimit(ctx context.Context, market string, quantity, rate decimal.Decimal) (string, error) {
	return c.limit(ctx, "selllimit", market, quantity, rate)
}

func (c *Client) limit(ctx context.Context, op, market string, quantity, rate decimal.Decimal) (string, error) {
	params := url.Values{}
	params.Set("market", market)
	params.Set("quantity", quantity.String())
	params.Set("rate", rate.String())

	res, err := c.call(ctx, op, c.baseURL+"/market/"+op, params, true)
	if err != nil {
		return "", err
	}
	id := res.Get("uuid")
	if id.Type != gjson.String || id.String() == "" {
		return "", fmt.Errorf("%s: response has no uuid", op)
	}
	return id.String(), nil
}

// Cancel requests cancellation of an open order.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("uuid", orderID)
	_, err := c.call(ctx, "cancel", c.baseURL+"/market/cancel", params, true)
	return err
}

// GetOpenOrders lists open orders in market.
func (c *Client) GetOpenOrders(ctx context.Context, market string) ([]orderDTO, error) {
	params := url.Values{}
	params.Set("market", market)
	res, err := c.call(ctx, "getopenorders", c.baseURL+"/market/getopenorders", params, true)
	if err != nil {
		return nil, err
	}
	var out []orderDTO
	if err := decodeList(res, &out); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	for i := range out {
		if err := out[i].validate(); err != nil {
			return nil, fmt.Errorf("decode open orders: %w", err)
		}
	}
	return out, nil
}

// GetOrder returns one order, or nil when the exchange returns no result.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*orderDTO, error) {
	params := url.Values{}
	params.Set("uuid", orderID)
	res, err := c.call(ctx, "getorder", c.baseURL+"/account/getorder", params, true)
	if err != nil {
		return nil, err
	}
	if !res.Exists() || res.Type == gjson.Null {
		return nil, nil
	}
	var out orderDTO
	if err := json.Unmarshal([]byte(res.Raw), &out); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	if err := out.validate(); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &out, nil
}

// GetTicker returns the current quote for market.
func (c *Client) GetTicker(ctx context.Context, market string) (tickerDTO, error) {
	params := url.Values{}
	params.Set("market", market)
	res, err := c.call(ctx, "getticker", c.baseURL+"/public/getticker", params, false)
	if err != nil {
		return tickerDTO{}, err
	}
	var out tickerDTO
	if err := json.Unmarshal([]byte(res.Raw), &out); err != nil {
		return tickerDTO{}, fmt.Errorf("decode ticker: %w", err)
	}
	if err := out.validate(); err != nil {
		return tickerDTO{}, fmt.Errorf("decode ticker: %w", err)
	}
	return out, nil
}

// GetOrderBook returns the book for market. bookType is both, buy or sell.
// For a single side the exchange returns a bare list.
func (c *Client) GetOrderBook(ctx context.Context, market, bookType string) (buys, sells []bookEntryDTO, err error) {
	params := url.Values{}
	params.Set("market", market)
	params.Set("type", bookType)
	res, err := c.call(ctx, "getorderbook", c.baseURL+"/public/getorderbook", params, false)
	if err != nil {
		return nil, nil, err
	}

	if res.IsArray() {
		entries, err := decodeBook(res)
		if err != nil {
			return nil, nil, fmt.Errorf("decode order book: %w", err)
		}
		if bookType == "sell" {
			return nil, entries, nil
		}
		return entries, nil, nil
	}
	if !res.IsObject() {
		return nil, nil, fmt.Errorf("decode order book: unexpected result %s", res.Type)
	}
	if buys, err = decodeBook(res.Get("buy")); err != nil {
		return nil, nil, fmt.Errorf("decode order book buys: %w", err)
	}
	if sells, err = decodeBook(res.Get("sell")); err != nil {
		return nil, nil, fmt.Errorf("decode order book sells: %w", err)
	}
	return buys, sells, nil
}

// GetMarkets lists every market the exchange offers.
func (c *Client) GetMarkets(ctx context.Context) ([]marketDTO, error) {
	res, err := c.call(ctx, "getmarkets", c.baseURL+"/public/getmarkets", nil, false)
	if err != nil {
		return nil, err
	}
	var out []marketDTO
	if err := decodeList(res, &out); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	for i := range out {
		if err := out[i].validate(); err != nil {
			return nil, fmt.Errorf("decode markets: %w", err)
		}
	}
	return out, nil
}

// GetTicks returns the candles of market at interval in the order the
// exchange sends them.
func (c *Client) GetTicks(ctx context.Context, market, interval string) ([]tickDTO, error) {
	params := url.Values{}
	params.Set("marketName", market)
	params.Set("tickInterval", interval)
	res, err := c.call(ctx, "getticks", c.ticksURL+"/pub/market/GetTicks", params, false)
	if err != nil {
		return nil, err
	}
	if res.Type == gjson.Null || !res.Exists() {
		return nil, nil
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("decode ticks: result is %s, not a list", res.Type)
	}

	items := res.Array()
	out := make([]tickDTO, 0, len(items))
	for i, item := range items {
		tick, err := parseTick(item)
		if err != nil {
			return nil, fmt.Errorf("decode tick %d: %w", i, err)
		}
		out = append(out, tick)
	}
	return out, nil
}

// call performs a GET and unwraps the {success, message, result} envelope.
// A success=false reply comes back as *APIError; anything else that goes
// wrong is a transport or decoding failure.
func (c *Client) call(ctx context.Context, op, endpoint string, params url.Values, signed bool) (gjson.Result, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("parse url: %w", err)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	target := u.String()
	var sign string
	if signed {
		target, sign = c.auth.Authorize(u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		req.Header.Set("apisign", sign)
	}

	reqID := uuid.NewString()
	start := time.Now()
	c.logger.DebugContext(ctx, "request",
		slog.String("op", op),
		slog.String("request_id", reqID),
		slog.String("path", u.Path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}

	c.logger.DebugContext(ctx, "response",
		slog.String("op", op),
		slog.String("request_id", reqID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		return gjson.Result{}, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 256))
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON response: %s", truncate(body, 256))
	}

	env := gjson.ParseBytes(body)
	success := env.Get("success")
	if success.Type != gjson.True && success.Type != gjson.False {
		return gjson.Result{}, errors.New("response envelope has no success flag")
	}
	if !success.Bool() {
		return gjson.Result{}, &APIError{Op: op, Message: env.Get("message").String()}
	}
	return env.Get("result"), nil
}

// decodeList unmarshals a JSON array result. A null or missing result
// decodes to an empty list.
func decodeList(res gjson.Result, out any) error {
	if !res.Exists() || res.Type == gjson.Null {
		return nil
	}
	if !res.IsArray() {
		return fmt.Errorf("result is %s, not a list", res.Type)
	}
	return json.Unmarshal([]byte(res.Raw), out)
}

func decodeBook(res gjson.Result) ([]bookEntryDTO, error) {
	var entries []bookEntryDTO
	if err := decodeList(res, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		if err := entries[i].validate(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Package bittrex implements domain.Exchange for the Bittrex REST API.
package bittrex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/exchangegate/internal/domain"
	"github.com/alanyoungcy/exchangegate/internal/symbols"
)

const (
	Name = "bittrex"

	// CandleLimit is the largest bar count the tick endpoint serves.
	CandleLimit = 2000

	defaultBookDepth = 100
	maxParallel      = 4

	declineInsufficientFunds = "INSUFFICIENT_FUNDS"
	declineDustTrade         = "DUST_TRADE_DISALLOWED_MIN_VALUE_50K_SAT"
)

// tickIntervals maps accepted frequency tokens to the exchange's intervals.
var tickIntervals = map[string]string{
	"minute": "oneMin",
	"1m":     "oneMin",
	"5m":     "fiveMin",
	"30m":    "thirtyMin",
	"1h":     "hour",
	"daily":  "day",
	"1D":     "day",
}

var _ domain.Exchange = (*Gateway)(nil)

// Gateway normalises Bittrex responses into the canonical order, candle,
// ticker and order book model. Every remote call first takes a slot from
// the rate limiter under the key "bittrex".
type Gateway struct {
	client   *Client
	limiter  domain.RateLimiter
	catalog  domain.CatalogStore
	journal  domain.OrderJournal
	notifier domain.OrderNotifier
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	assets domain.AssetFinder
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithJournal records every created, reconstructed and cancelled order.
func WithJournal(j domain.OrderJournal) Option {
	return func(g *Gateway) { g.journal = j }
}

// WithNotifier reports order lifecycle events.
func WithNotifier(n domain.OrderNotifier) Option {
	return func(g *Gateway) { g.notifier = n }
}

// WithClock overrides the time source for order and ticker timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// NewGateway creates a Gateway. catalog may be nil, in which case
// RefreshSymbolCatalog only rebuilds the catalog without persisting it.
func NewGateway(client *Client, limiter domain.RateLimiter, catalog domain.CatalogStore, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		client:  client,
		limiter: limiter,
		catalog: catalog,
		logger:  logger.With(slog.String("component", "bittrex_gateway")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LoadAssets builds the asset finder from the stored symbol catalog.
func (g *Gateway) LoadAssets(ctx context.Context) error {
	if g.catalog == nil {
		return nil
	}
	cat, err := g.catalog.Load(ctx, Name)
	if err != nil {
		return fmt.Errorf("bittrex: load assets: %w", err)
	}
	finder, err := symbols.NewFinder(Name, cat)
	if err != nil {
		return fmt.Errorf("bittrex: load assets: %w", err)
	}
	g.mu.Lock()
	g.assets = finder
	g.mu.Unlock()
	g.logger.InfoContext(ctx, "assets loaded", slog.Int("count", len(cat)))
	return nil
}

// Assets returns the current asset finder, which may be nil.
func (g *Gateway) Assets() domain.AssetFinder {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.assets
}

func (g *Gateway) Name() string { return Name }

// TimeSkew is not measured for this exchange.
func (g *Gateway) TimeSkew() time.Duration { return 0 }

// Balances maps lowercase currency codes to available amounts.
func (g *Gateway) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	g.logger.DebugContext(ctx, "retrieving wallet balances")

	balances, err := g.client.GetBalances(ctx)
	if err != nil {
		return nil, g.requestError("getbalances", err)
	}

	out := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		out[strings.ToLower(*b.Currency)] = *b.Available
	}
	return out, nil
}

// CreateOrder places a limit order. Stop-limit orders are placed as plain
// limit orders: the exchange has no stop orders, so the stop price is only
// kept on the returned Order. Insufficient funds and dust-size orders are
// soft declines and return (nil, nil).
func (g *Gateway) CreateOrder(ctx context.Context, asset domain.TradingPair, amount decimal.Decimal, isBuy bool, style domain.OrderStyle) (*domain.Order, error) {
	var limit, stop decimal.NullDecimal
	switch s := style.(type) {
	case domain.LimitOrder:
		limit = decimal.NewNullDecimal(s.Price)
	case domain.StopLimitOrder:
		g.logger.WarnContext(ctx, "exchange ignores the stop price of stop-limit orders",
			slog.String("symbol", asset.Symbol),
			slog.String("stop_price", s.StopPrice.String()),
		)
		limit = decimal.NewNullDecimal(s.LimitPrice)
		stop = decimal.NewNullDecimal(s.StopPrice)
	default:
		return nil, &domain.InvalidOrderStyleError{Exchange: Name, Style: domain.StyleName(style)}
	}

	market, err := exchangeSymbol(asset)
	if err != nil {
		return nil, err
	}

	quantity := amount.Abs()
	signed := quantity
	if !isBuy {
		signed = quantity.Neg()
	}

	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	g.logger.InfoContext(ctx, "creating order",
		slog.String("symbol", asset.Symbol),
		slog.Bool("buy", isBuy),
		slog.String("quantity", quantity.String()),
		slog.String("limit", limit.Decimal.String()),
	)

	var id string
	if isBuy {
		id, err = g.client.BuyLimit(ctx, market, quantity, limit.Decimal)
	} else {
		id, err = g.client.SellLimit(ctx, market, quantity, limit.Decimal)
	}
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, g.requestError("createorder", err)
		}
		switch apiErr.Message {
		case declineInsufficientFunds, declineDustTrade:
			g.logger.WarnContext(ctx, "order declined by exchange",
				slog.String("symbol", asset.Symbol),
				slog.String("reason", apiErr.Message),
			)
			if g.notifier != nil {
				g.notifier.OrderDeclined(ctx, Name, asset, signed, apiErr.Message)
			}
			return nil, nil
		default:
			return nil, &domain.CreateOrderError{Exchange: Name, Reason: apiErr.Message}
		}
	}

	order := domain.Order{
		ID:         id,
		Asset:      asset,
		Amount:     signed,
		LimitPrice: limit,
		StopPrice:  stop,
		Status:     domain.OrderStatusOpen,
		CreatedAt:  g.now().UTC(),
	}
	g.record(ctx, order)
	if g.notifier != nil {
		g.notifier.OrderCreated(ctx, Name, order)
	}
	return &order, nil
}

// OpenOrders lists the open orders on asset's market.
func (g *Gateway) OpenOrders(ctx context.Context, asset domain.TradingPair) ([]domain.Order, error) {
	market, err := exchangeSymbol(asset)
	if err != nil {
		return nil, err
	}
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}

	dtos, err := g.client.GetOpenOrders(ctx, market)
	if err != nil {
		return nil, g.requestError("getopenorders", err)
	}

	orders := make([]domain.Order, 0, len(dtos))
	for _, dto := range dtos {
		order, _ := g.reconstruct(dto)
		g.record(ctx, order)
		orders = append(orders, order)
	}
	return orders, nil
}

// Order looks up one order and returns it with its average executed price.
func (g *Gateway) Order(ctx context.Context, orderID string) (domain.Order, decimal.Decimal, error) {
	if err := g.acquire(ctx); err != nil {
		return domain.Order{}, decimal.Zero, err
	}
	g.logger.InfoContext(ctx, "retrieving order", slog.String("order_id", orderID))

	dto, err := g.client.GetOrder(ctx, orderID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isUnknownOrder(apiErr.Message) {
			return domain.Order{}, decimal.Zero, &domain.OrderNotFoundError{Exchange: Name, OrderID: orderID}
		}
		return domain.Order{}, decimal.Zero, g.requestError("getorder", err)
	}
	if dto == nil {
		return domain.Order{}, decimal.Zero, &domain.OrderNotFoundError{Exchange: Name, OrderID: orderID}
	}

	order, executed := g.reconstruct(*dto)
	g.record(ctx, order)
	return order, executed, nil
}

// CancelOrder cancels an order. A refusal carries the exchange's message.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "cancelling order", slog.String("order_id", orderID))

	if err := g.client.Cancel(ctx, orderID); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return &domain.OrderCancelError{Exchange: Name, OrderID: orderID, Reason: apiErr.Message}
		}
		return g.requestError("cancel", err)
	}

	if g.journal != nil {
		if err := g.journal.MarkCancelled(ctx, Name, orderID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			g.logger.ErrorContext(ctx, "journal cancel failed",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}
	if g.notifier != nil {
		g.notifier.OrderCancelled(ctx, Name, orderID)
	}
	return nil
}

// Candles fetches bars for each asset, keyed by canonical symbol and
// ordered oldest first. With barCount zero only the most recent bar is
// returned; otherwise the first barCount bars at or after start are.
func (g *Gateway) Candles(ctx context.Context, frequency string, assets []domain.TradingPair, barCount int, start *time.Time) (map[string][]domain.Candle, error) {
	interval, ok := tickIntervals[frequency]
	if !ok {
		return nil, &domain.InvalidHistoryFrequencyError{Frequency: frequency}
	}
	if barCount < 0 || barCount > CandleLimit {
		return nil, &domain.InvalidArgumentError{Name: "bar_count", Value: fmt.Sprint(barCount)}
	}
	g.logger.InfoContext(ctx, "retrieving candles",
		slog.String("interval", interval),
		slog.Int("assets", len(assets)),
		slog.Int("bar_count", barCount),
	)

	var (
		mu  sync.Mutex
		out = make(map[string][]domain.Candle, len(assets))
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallel)
	for _, asset := range assets {
		eg.Go(func() error {
			market, err := exchangeSymbol(asset)
			if err != nil {
				return err
			}
			if err := g.acquire(ctx); err != nil {
				return err
			}
			ticks, err := g.client.GetTicks(ctx, market, interval)
			if err != nil {
				return g.requestError("getticks", err)
			}
			candles := selectCandles(ticks, barCount, start)

			mu.Lock()
			out[asset.Symbol] = candles
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// selectCandles reverses the newest-first ticks, drops bars before start
// and picks the requested bars.
func selectCandles(ticks []tickDTO, barCount int, start *time.Time) []domain.Candle {
	ordered := make([]domain.Candle, 0, len(ticks))
	for i := len(ticks) - 1; i >= 0; i-- {
		t := ticks[i]
		if start != nil && t.Time.Before(*start) {
			continue
		}
		ordered = append(ordered, domain.Candle{
			Open:      t.Open,
			High:      t.High,
			Low:       t.Low,
			Close:     t.Close,
			Volume:    t.Volume,
			Price:     t.Close,
			Timestamp: t.Time,
		})
	}

	if barCount == 0 {
		if len(ordered) == 0 {
			return ordered
		}
		return ordered[len(ordered)-1:]
	}
	if len(ordered) > barCount {
		ordered = ordered[:barCount]
	}
	return ordered
}

// Tickers fetches a quote per asset, keyed by canonical symbol. The
// exchange has no batch endpoint, so each asset costs one request.
func (g *Gateway) Tickers(ctx context.Context, assets []domain.TradingPair) (map[string]domain.Ticker, error) {
	g.logger.InfoContext(ctx, "retrieving tickers", slog.Int("assets", len(assets)))

	var (
		mu  sync.Mutex
		out = make(map[string]domain.Ticker, len(assets))
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallel)
	for _, asset := range assets {
		eg.Go(func() error {
			market, err := exchangeSymbol(asset)
			if err != nil {
				return err
			}
			if err := g.acquire(ctx); err != nil {
				return err
			}
			dto, err := g.client.GetTicker(ctx, market)
			if err != nil {
				return g.requestError("getticker", err)
			}

			mu.Lock()
			out[asset.Symbol] = domain.Ticker{
				Timestamp: g.now().UTC(),
				Bid:       *dto.Bid,
				Ask:       *dto.Ask,
				LastPrice: *dto.Last,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderBook returns the requested sides of asset's book, each cut to depth
// levels. A non-positive depth means 100.
func (g *Gateway) OrderBook(ctx context.Context, asset domain.TradingPair, side domain.BookSide, depth int) (domain.OrderBook, error) {
	var bookType string
	switch side {
	case domain.BookSideAll:
		bookType = "both"
	case domain.BookSideBid:
		bookType = "buy"
	case domain.BookSideAsk:
		bookType = "sell"
	default:
		return domain.OrderBook{}, &domain.InvalidArgumentError{Name: "side", Value: string(side)}
	}
	if depth <= 0 {
		depth = defaultBookDepth
	}

	market, err := exchangeSymbol(asset)
	if err != nil {
		return domain.OrderBook{}, err
	}
	if err := g.acquire(ctx); err != nil {
		return domain.OrderBook{}, err
	}

	buys, sells, err := g.client.GetOrderBook(ctx, market, bookType)
	if err != nil {
		return domain.OrderBook{}, g.requestError("getorderbook", err)
	}

	book := domain.OrderBook{Timestamp: g.now().UTC()}
	if side != domain.BookSideAsk {
		book.Bids = bookEntries(buys, depth)
	}
	if side != domain.BookSideBid {
		book.Asks = bookEntries(sells, depth)
	}
	return book, nil
}

func bookEntries(dtos []bookEntryDTO, depth int) []domain.BookEntry {
	if len(dtos) > depth {
		dtos = dtos[:depth]
	}
	out := make([]domain.BookEntry, 0, len(dtos))
	for _, e := range dtos {
		out = append(out, domain.BookEntry{Rate: *e.Rate, Quantity: *e.Quantity})
	}
	return out
}

// RefreshSymbolCatalog rebuilds the catalog from the market listing,
// keeping the end dates of the stored catalog, saves it and reloads the
// asset finder.
func (g *Gateway) RefreshSymbolCatalog(ctx context.Context) (domain.Catalog, error) {
	cached := domain.Catalog{}
	if g.catalog != nil {
		var err error
		if cached, err = g.catalog.Load(ctx, Name); err != nil {
			return nil, fmt.Errorf("bittrex: refresh catalog: %w", err)
		}
	}

	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	markets, err := g.client.GetMarkets(ctx)
	if err != nil {
		return nil, g.requestError("getmarkets", err)
	}

	listings := make([]symbols.Listing, 0, len(markets))
	for _, m := range markets {
		listings = append(listings, symbols.Listing{
			ExchangeSymbol: m.MarketName,
			MarketCurrency: m.MarketCurrency,
			BaseCurrency:   m.BaseCurrency,
			Created:        m.Created.Time,
		})
	}
	catalog := symbols.Merge(cached, listings)

	if g.catalog != nil {
		if err := g.catalog.Save(ctx, Name, catalog); err != nil {
			return nil, fmt.Errorf("bittrex: refresh catalog: %w", err)
		}
	}
	finder, err := symbols.NewFinder(Name, catalog)
	if err != nil {
		return nil, fmt.Errorf("bittrex: refresh catalog: %w", err)
	}
	g.mu.Lock()
	g.assets = finder
	g.mu.Unlock()

	g.logger.InfoContext(ctx, "symbol catalog refreshed", slog.Int("markets", len(catalog)))
	return catalog, nil
}

// reconstruct translates a remote order. Cancellation wins over the Closed
// timestamp, which wins over open.
func (g *Gateway) reconstruct(dto orderDTO) (domain.Order, decimal.Decimal) {
	status := domain.OrderStatusOpen
	switch {
	case dto.CancelInitiated:
		status = domain.OrderStatusCancelled
	case dto.closed():
		status = domain.OrderStatusFilled
	}

	quantity := *dto.Quantity
	filled := quantity.Sub(*dto.QuantityRemaining)
	amount := quantity
	if strings.HasSuffix(dto.side(), "SELL") {
		amount = quantity.Neg()
	}

	order := domain.Order{
		ID:         *dto.OrderUUID,
		Asset:      g.assetFor(*dto.Exchange),
		Amount:     amount,
		LimitPrice: dto.Limit,
		Filled:     filled,
		Commission: dto.CommissionPaid.Decimal,
		Status:     status,
		CreatedAt:  dto.Opened.Time,
	}
	return order, dto.PricePerUnit.Decimal
}

// assetFor resolves an exchange symbol such as "BTC-NEO" through the asset
// finder, deriving a bare pair when the symbol is unknown.
func (g *Gateway) assetFor(market string) domain.TradingPair {
	if finder := g.Assets(); finder != nil {
		if pair, err := finder.Lookup(market); err == nil {
			return pair
		}
	}
	pair := domain.TradingPair{ExchangeSymbol: market, Exchange: Name}
	if base, quote, ok := strings.Cut(market, "-"); ok {
		pair.Symbol = symbols.CanonicalSymbol(quote, base)
	}
	return pair
}

func (g *Gateway) record(ctx context.Context, order domain.Order) {
	if g.journal == nil {
		return
	}
	if err := g.journal.Record(ctx, Name, order); err != nil {
		g.logger.ErrorContext(ctx, "journal record failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Gateway) acquire(ctx context.Context) error {
	if err := g.limiter.Acquire(ctx, Name); err != nil {
		return fmt.Errorf("bittrex: %w", err)
	}
	return nil
}

func (g *Gateway) requestError(op string, err error) error {
	return &domain.ExchangeRequestError{Exchange: Name, Op: op, Err: err}
}

func exchangeSymbol(asset domain.TradingPair) (string, error) {
	if asset.ExchangeSymbol == "" {
		return "", &domain.InvalidArgumentError{Name: "asset", Value: asset.Symbol}
	}
	return asset.ExchangeSymbol, nil
}

func isUnknownOrder(msg string) bool {
	return msg == "INVALID_ORDER" || msg == "UUID_INVALID"
}

package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange is the gateway to a remote trading venue. Implementations apply
// their rate limiter before every remote call and wrap transport failures in
// *ExchangeRequestError.
type Exchange interface {
	Name() string

	// Balances maps lowercase currency codes to available amounts.
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)

	// CreateOrder places an order. It returns (nil, nil) when the exchange
	// softly declines it (insufficient funds, order below minimum size).
	CreateOrder(ctx context.Context, asset TradingPair, amount decimal.Decimal, isBuy bool, style OrderStyle) (*Order, error)
	OpenOrders(ctx context.Context, asset TradingPair) ([]Order, error)
	// Order returns the order and its average executed price.
	Order(ctx context.Context, orderID string) (Order, decimal.Decimal, error)
	CancelOrder(ctx context.Context, orderID string) error

	// Candles returns, per asset symbol, bars ordered oldest first. A
	// barCount of zero returns only the most recent bar.
	Candles(ctx context.Context, frequency string, assets []TradingPair, barCount int, start *time.Time) (map[string][]Candle, error)
	Tickers(ctx context.Context, assets []TradingPair) (map[string]Ticker, error)
	OrderBook(ctx context.Context, asset TradingPair, side BookSide, depth int) (OrderBook, error)

	// RefreshSymbolCatalog rebuilds and persists the exchange's symbol map.
	RefreshSymbolCatalog(ctx context.Context) (Catalog, error)
	TimeSkew() time.Duration
}

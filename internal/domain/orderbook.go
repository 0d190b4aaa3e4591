package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Price always equals Close.
type Candle struct {
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// Ticker is a point-in-time quote for an asset.
type Ticker struct {
	Timestamp time.Time
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	LastPrice decimal.Decimal
}

// BookEntry is a single rate+quantity level in an order book.
type BookEntry struct {
	Rate     decimal.Decimal
	Quantity decimal.Decimal
}

// BookSide selects which sides of an order book to return.
type BookSide string

const (
	BookSideAll BookSide = "all"
	BookSideBid BookSide = "bid"
	BookSideAsk BookSide = "ask"
)

// OrderBook is a snapshot of bids and asks taken at Timestamp. A side that was
// not requested is nil.
type OrderBook struct {
	Bids      []BookEntry
	Asks      []BookEntry
	Timestamp time.Time
}

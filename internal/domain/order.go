package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the canonical order model. Amount is signed: negative for sells.
// Filled never exceeds |Amount|.
type Order struct {
	ID         string
	Asset      TradingPair
	Amount     decimal.Decimal
	LimitPrice decimal.NullDecimal
	StopPrice  decimal.NullDecimal
	Filled     decimal.Decimal
	Commission decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
}

// IsBuy reports whether the order buys the asset.
func (o Order) IsBuy() bool {
	return o.Amount.IsPositive()
}

// OrderStyle is the closed set of order styles a caller may request. Use a
// type switch over the concrete types below.
type OrderStyle interface {
	styleName() string
}

// LimitOrder rests at Price.
type LimitOrder struct {
	Price decimal.Decimal
}

// StopLimitOrder becomes a limit order at LimitPrice once StopPrice trades.
type StopLimitOrder struct {
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
}

// MarketOrder executes at the best available price.
type MarketOrder struct{}

func (LimitOrder) styleName() string     { return "LimitOrder" }
func (StopLimitOrder) styleName() string { return "StopLimitOrder" }
func (MarketOrder) styleName() string    { return "MarketOrder" }

// StyleName returns a printable name for s.
func StyleName(s OrderStyle) string {
	if s == nil {
		return "<nil>"
	}
	return s.styleName()
}

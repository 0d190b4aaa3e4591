package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// OrderJournal records every order the gateway creates, reconstructs or
// cancels.
type OrderJournal interface {
	Record(ctx context.Context, exchange string, order Order) error
	MarkCancelled(ctx context.Context, exchange, orderID string) error
	Get(ctx context.Context, exchange, orderID string) (Order, error)
	ListByAsset(ctx context.Context, exchange, symbol string, opts ListOpts) ([]Order, error)
}

// CatalogStore loads and persists per-exchange symbol catalogs.
type CatalogStore interface {
	Load(ctx context.Context, exchange string) (Catalog, error)
	Save(ctx context.Context, exchange string, catalog Catalog) error
}

// OrderNotifier receives order lifecycle events. Delivery failures are the
// implementation's concern and never fail the order operation.
type OrderNotifier interface {
	OrderCreated(ctx context.Context, exchange string, order Order)
	OrderDeclined(ctx context.Context, exchange string, asset TradingPair, amount decimal.Decimal, reason string)
	OrderCancelled(ctx context.Context, exchange, orderID string)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

var _ domain.OrderJournal = (*OrderStore)(nil)

// OrderStore implements domain.OrderJournal. Quantities and prices are kept
// as NUMERIC and travel as text so no precision is lost.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Record inserts the order or refreshes its fill state. A stop price already
// on file is kept when the update carries none, since reconstructed orders
// never know it.
func (s *OrderStore) Record(ctx context.Context, exchange string, o domain.Order) error {
	const query = `
		INSERT INTO exchange_orders (
			exchange, id, symbol, exchange_symbol, amount,
			limit_price, stop_price, filled, commission, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::numeric,
			$6::numeric, $7::numeric, $8::numeric, $9::numeric, $10,
			$11, NOW()
		)
		ON CONFLICT (exchange, id) DO UPDATE SET
			filled      = EXCLUDED.filled,
			commission  = EXCLUDED.commission,
			status      = EXCLUDED.status,
			limit_price = COALESCE(EXCLUDED.limit_price, exchange_orders.limit_price),
			stop_price  = COALESCE(EXCLUDED.stop_price, exchange_orders.stop_price),
			updated_at  = NOW()`

	_, err := s.pool.Exec(ctx, query,
		exchange, o.ID, o.Asset.Symbol, o.Asset.ExchangeSymbol, o.Amount.String(),
		nullable(o.LimitPrice), nullable(o.StopPrice), o.Filled.String(), o.Commission.String(),
		string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record order %s: %w", o.ID, err)
	}
	return nil
}

// MarkCancelled flags a journalled order as cancelled.
func (s *OrderStore) MarkCancelled(ctx context.Context, exchange, orderID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE exchange_orders
		 SET status = $1, cancelled_at = NOW(), updated_at = NOW()
		 WHERE exchange = $2 AND id = $3`,
		string(domain.OrderStatusCancelled), exchange, orderID)
	if err != nil {
		return fmt.Errorf("postgres: cancel order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, symbol, exchange_symbol, amount::text,
	limit_price::text, stop_price::text, filled::text, commission::text,
	status, created_at`

func scanOrder(exchange string, scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var (
		o                          domain.Order
		amount, filled, commission string
		limitPrice, stopPrice      *string
		status                     string
	)
	err := scanner.Scan(
		&o.ID, &o.Asset.Symbol, &o.Asset.ExchangeSymbol, &amount,
		&limitPrice, &stopPrice, &filled, &commission,
		&status, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Asset.Exchange = exchange
	o.Status = domain.OrderStatus(status)

	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Order{}, fmt.Errorf("amount: %w", err)
	}
	if o.Filled, err = decimal.NewFromString(filled); err != nil {
		return domain.Order{}, fmt.Errorf("filled: %w", err)
	}
	if o.Commission, err = decimal.NewFromString(commission); err != nil {
		return domain.Order{}, fmt.Errorf("commission: %w", err)
	}
	if o.LimitPrice, err = parseNullable(limitPrice); err != nil {
		return domain.Order{}, fmt.Errorf("limit_price: %w", err)
	}
	if o.StopPrice, err = parseNullable(stopPrice); err != nil {
		return domain.Order{}, fmt.Errorf("stop_price: %w", err)
	}
	return o, nil
}

// Get retrieves one order.
func (s *OrderStore) Get(ctx context.Context, exchange, orderID string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM exchange_orders WHERE exchange = $1 AND id = $2`,
		exchange, orderID)

	o, err := scanOrder(exchange, row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", orderID, err)
	}
	return o, nil
}

// ListByAsset returns the orders journalled for a canonical symbol, newest
// first.
func (s *OrderStore) ListByAsset(ctx context.Context, exchange, symbol string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM exchange_orders WHERE exchange = $1 AND symbol = $2`
	args := []any{exchange, symbol}
	argIdx := 3

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for %s: %w", symbol, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(exchange, rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan orders for %s: %w", symbol, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders for %s: %w", symbol, err)
	}
	return orders, nil
}

func nullable(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	v := d.Decimal.String()
	return &v
}

func parseNullable(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

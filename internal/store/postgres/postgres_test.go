package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/exgate?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "exgate"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_exchange_orders.sql", names[0])
	assert.IsIncreasing(t, names)
}

func TestNullableDecimal(t *testing.T) {
	assert.Nil(t, nullable(decimal.NullDecimal{}))
	v := nullable(decimal.NewNullDecimal(decimal.RequireFromString("0.0045")))
	require.NotNil(t, v)
	assert.Equal(t, "0.0045", *v)

	d, err := parseNullable(v)
	require.NoError(t, err)
	assert.True(t, d.Valid)

	d, err = parseNullable(nil)
	require.NoError(t, err)
	assert.False(t, d.Valid)
}

func testStore(t *testing.T) *OrderStore {
	t.Helper()
	dsn := os.Getenv("EXGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EXGATE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	return NewOrderStore(c.Pool())
}

func TestOrderJournal(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	exchange := "test-" + uuid.NewString()[:8]

	order := domain.Order{
		ID:         uuid.NewString(),
		Asset:      domain.TradingPair{Symbol: "neo_btc", ExchangeSymbol: "BTC-NEO"},
		Amount:     decimal.RequireFromString("-2.5"),
		LimitPrice: decimal.NewNullDecimal(decimal.RequireFromString("0.0045")),
		StopPrice:  decimal.NewNullDecimal(decimal.RequireFromString("0.004")),
		Filled:     decimal.Zero,
		Commission: decimal.Zero,
		Status:     domain.OrderStatusOpen,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Record(ctx, exchange, order))

	update := order
	update.StopPrice = decimal.NullDecimal{}
	update.Filled = decimal.RequireFromString("1")
	require.NoError(t, store.Record(ctx, exchange, update))

	got, err := store.Get(ctx, exchange, order.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(order.Amount))
	assert.True(t, got.Filled.Equal(decimal.RequireFromString("1")))
	assert.True(t, got.StopPrice.Valid, "stop price survives an update without one")
	assert.True(t, got.CreatedAt.Equal(order.CreatedAt))

	require.NoError(t, store.MarkCancelled(ctx, exchange, order.ID))
	listed, err := store.ListByAsset(ctx, exchange, "neo_btc", domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, domain.OrderStatusCancelled, listed[0].Status)

	assert.ErrorIs(t, store.MarkCancelled(ctx, exchange, "nope"), domain.ErrNotFound)
	_, err = store.Get(ctx, exchange, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

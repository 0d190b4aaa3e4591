package exchange

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/exchangegate/internal/domain"
	"github.com/alanyoungcy/exchangegate/internal/ratelimit"
)

func TestNew(t *testing.T) {
	deps := Deps{
		Limiter: ratelimit.New(60, 0),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ex, err := New("Bittrex", deps)
	require.NoError(t, err)
	assert.Equal(t, "bittrex", ex.Name())

	_, err = New("poloniex", deps)
	assert.ErrorIs(t, err, domain.ErrUnsupportedExchange)

	_, err = New("bittrex", Deps{Logger: deps.Logger})
	assert.Error(t, err)

	assert.Equal(t, []string{"bittrex"}, Supported())
}

func TestNewGatewayUsesLimiter(t *testing.T) {
	limiter := ratelimit.New(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex, err := New("bittrex", Deps{Limiter: limiter, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	_, err = ex.Balances(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, limiter.InWindow("bittrex"))
}

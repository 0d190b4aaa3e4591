package bundle

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

func TestChunkNames(t *testing.T) {
	c := Chunk{Exchange: "bitfinex", Frequency: domain.FrequencyDaily, Symbol: "neo_eth", Period: "2017-10"}
	assert.Equal(t, "bitfinex-daily-neo_eth-2017-10", c.Name())
	assert.Equal(t, "bitfinex-daily-neo_eth-2017-10.tar.gz", c.ArchiveName())
}

func TestChunks_Monthly(t *testing.T) {
	got := Chunks("bittrex", "neo_btc", domain.FrequencyMinute, day("2017-11-15"), day("2018-01-02"))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"2017-11", "2017-12", "2018-01"},
		[]string{got[0].Period, got[1].Period, got[2].Period})
	assert.Equal(t, time.Date(2017, 11, 30, 23, 59, 0, 0, time.UTC), got[0].End)
}

func TestChunks_Yearly(t *testing.T) {
	got := Chunks("bittrex", "neo_btc", domain.FrequencyDaily, day("2016-06-01"), day("2017-02-01"))
	require.Len(t, got, 2)
	assert.Equal(t, "bittrex-daily-neo_btc-2016", got[0].Name())
	assert.Equal(t, "bittrex-daily-neo_btc-2017", got[1].Name())
}

func TestChunks_EndIsExclusive(t *testing.T) {
	daily := Chunks("bittrex", "neo_btc", domain.FrequencyDaily, day("2016-06-01"), day("2018-01-01"))
	require.Len(t, daily, 2)
	assert.Equal(t, "2017", daily[1].Period)

	minute := Chunks("bittrex", "neo_btc", domain.FrequencyMinute, day("2017-11-15"), day("2018-01-01"))
	require.Len(t, minute, 2)
	assert.Equal(t, "2017-12", minute[1].Period)

	assert.Empty(t, Chunks("bittrex", "neo_btc", domain.FrequencyDaily, day("2017-01-01"), day("2017-01-01")))
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) GetValue(ctx context.Context, sid int64, ts time.Time, field string) (float64, error) {
	args := m.Called(ctx, sid, ts, field)
	return args.Get(0).(float64), args.Error(1)
}

func TestRangeInBundle(t *testing.T) {
	ctx := context.Background()
	asset := domain.TradingPair{SID: 7, Symbol: "neo_btc"}
	start, end := day("2020-01-01"), day("2020-02-01")

	t.Run("both ends present", func(t *testing.T) {
		r := new(mockReader)
		r.On("GetValue", ctx, int64(7), start, "close").Return(1.5, nil)
		r.On("GetValue", ctx, int64(7), end, "close").Return(1.7, nil)
		assert.True(t, RangeInBundle(ctx, asset, start, end, r))
		r.AssertExpectations(t)
	})

	t.Run("missing end", func(t *testing.T) {
		r := new(mockReader)
		r.On("GetValue", ctx, int64(7), start, "close").Return(1.5, nil)
		r.On("GetValue", ctx, int64(7), end, "close").Return(math.NaN(), nil)
		assert.False(t, RangeInBundle(ctx, asset, start, end, r))
	})

	t.Run("missing start skips end", func(t *testing.T) {
		r := new(mockReader)
		r.On("GetValue", ctx, int64(7), start, "close").Return(math.NaN(), nil)
		assert.False(t, RangeInBundle(ctx, asset, start, end, r))
		r.AssertNumberOfCalls(t, "GetValue", 1)
	})

	t.Run("reader error", func(t *testing.T) {
		r := new(mockReader)
		r.On("GetValue", ctx, int64(7), start, "close").Return(0.0, domain.ErrNotFound)
		assert.False(t, RangeInBundle(ctx, asset, start, end, r))
	})

	t.Run("no reader", func(t *testing.T) {
		assert.False(t, RangeInBundle(ctx, asset, start, end, nil))
	})
}

package app

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/exchangegate/internal/bundle"
	"github.com/alanyoungcy/exchangegate/internal/config"
	"github.com/alanyoungcy/exchangegate/internal/crypto"
	"github.com/alanyoungcy/exchangegate/internal/domain"
	"github.com/alanyoungcy/exchangegate/internal/symbols"
)

type placed struct {
	asset  domain.TradingPair
	amount decimal.Decimal
	isBuy  bool
	style  domain.OrderStyle
}

// stubExchange implements domain.Exchange with canned answers.
type stubExchange struct {
	balances map[string]decimal.Decimal
	decline  bool
	placed   []placed
}

func (s *stubExchange) Name() string { return "bittrex" }

func (s *stubExchange) Balances(context.Context) (map[string]decimal.Decimal, error) {
	return s.balances, nil
}

func (s *stubExchange) CreateOrder(_ context.Context, asset domain.TradingPair, amount decimal.Decimal, isBuy bool, style domain.OrderStyle) (*domain.Order, error) {
	s.placed = append(s.placed, placed{asset, amount, isBuy, style})
	if s.decline {
		return nil, nil
	}
	return &domain.Order{ID: "u-1", Asset: asset, Amount: amount, Status: domain.OrderStatusOpen}, nil
}

func (s *stubExchange) OpenOrders(context.Context, domain.TradingPair) ([]domain.Order, error) {
	return nil, nil
}

func (s *stubExchange) Order(_ context.Context, id string) (domain.Order, decimal.Decimal, error) {
	return domain.Order{}, decimal.Zero, &domain.OrderNotFoundError{Exchange: "bittrex", OrderID: id}
}

func (s *stubExchange) CancelOrder(context.Context, string) error { return nil }

func (s *stubExchange) Candles(context.Context, string, []domain.TradingPair, int, *time.Time) (map[string][]domain.Candle, error) {
	return nil, nil
}

func (s *stubExchange) Tickers(context.Context, []domain.TradingPair) (map[string]domain.Ticker, error) {
	return nil, nil
}

func (s *stubExchange) OrderBook(context.Context, domain.TradingPair, domain.BookSide, int) (domain.OrderBook, error) {
	return domain.OrderBook{}, nil
}

func (s *stubExchange) RefreshSymbolCatalog(context.Context) (domain.Catalog, error) {
	return domain.Catalog{}, nil
}

func (s *stubExchange) TimeSkew() time.Duration { return 0 }

func testFinder(t *testing.T) domain.AssetFinder {
	t.Helper()
	f, err := symbols.NewFinder("bittrex", domain.Catalog{
		"BTC-NEO": {EndDaily: "2018-03-01", EndMinute: domain.NotAvailable, StartDate: "2017-06-01", Symbol: "neo_btc"},
		"ETH-LTC": {EndDaily: domain.NotAvailable, EndMinute: domain.NotAvailable, StartDate: "2017-06-01", Symbol: "ltc_eth"},
	})
	require.NoError(t, err)
	return f
}

func testApp(out io.Writer) *App {
	cfg := config.Defaults()
	return New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), out)
}

func TestResolveAssets(t *testing.T) {
	finder := testFinder(t)

	got, err := resolveAssets(finder, "BTC-NEO, ltc_eth")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "neo_btc", got[0].Symbol)
	assert.Equal(t, "ETH-LTC", got[1].ExchangeSymbol)

	got, err = resolveAssets(finder, "NEO_BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC-NEO", got[0].ExchangeSymbol)

	_, err = resolveAssets(finder, "doge_btc")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var argErr *domain.InvalidArgumentError
	_, err = resolveAssets(finder, " , ")
	assert.ErrorAs(t, err, &argErr)

	_, err = resolveAssets(nil, "neo_btc")
	assert.Error(t, err)
}

func TestDispatchUnknownCommand(t *testing.T) {
	a := testApp(io.Discard)
	err := a.dispatch(context.Background(), &Dependencies{}, "launch", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balances")
}

func TestBalancesCommand(t *testing.T) {
	var out bytes.Buffer
	ex := &stubExchange{balances: map[string]decimal.Decimal{"btc": decimal.RequireFromString("1.5")}}

	err := testApp(&out).dispatch(context.Background(), &Dependencies{Exchange: ex}, "balances", nil)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "1.5", got["btc"])
}

func TestPlaceCommand(t *testing.T) {
	ex := &stubExchange{}
	deps := &Dependencies{Exchange: ex, Assets: testFinder(t)}
	a := testApp(io.Discard)

	err := a.dispatch(context.Background(), deps, "place",
		[]string{"-symbol", "neo_btc", "-side", "sell", "-amount", "2.5", "-limit", "0.004"})
	require.NoError(t, err)
	require.Len(t, ex.placed, 1)
	assert.False(t, ex.placed[0].isBuy)
	assert.True(t, ex.placed[0].amount.Equal(decimal.RequireFromString("-2.5")))
	assert.Equal(t, domain.LimitOrder{Price: decimal.RequireFromString("0.004")}, ex.placed[0].style)

	err = a.dispatch(context.Background(), deps, "place",
		[]string{"-symbol", "neo_btc", "-amount", "1", "-limit", "0.004", "-stop", "0.0039"})
	require.NoError(t, err)
	assert.IsType(t, domain.StopLimitOrder{}, ex.placed[1].style)
	assert.True(t, ex.placed[1].isBuy)

	var argErr *domain.InvalidArgumentError
	err = a.dispatch(context.Background(), deps, "place", []string{"-symbol", "neo_btc", "-amount", "-1"})
	assert.ErrorAs(t, err, &argErr)
}

func TestPlaceCommandDeclined(t *testing.T) {
	var out bytes.Buffer
	ex := &stubExchange{decline: true}
	deps := &Dependencies{Exchange: ex, Assets: testFinder(t)}

	err := testApp(&out).dispatch(context.Background(), deps, "place", []string{"-symbol", "neo_btc", "-amount", "1"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "declined")
	assert.Equal(t, domain.MarketOrder{}, ex.placed[0].style)
}

func TestOrderCommandPropagatesNotFound(t *testing.T) {
	deps := &Dependencies{Exchange: &stubExchange{}}
	err := testApp(io.Discard).dispatch(context.Background(), deps, "order", []string{"-id", "nope"})

	var nf *domain.OrderNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestHistoryNeedsJournal(t *testing.T) {
	deps := &Dependencies{Exchange: &stubExchange{}}
	err := testApp(io.Discard).dispatch(context.Background(), deps, "history", []string{"-symbol", "neo_btc"})
	assert.Error(t, err)
}

func tarGz(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestBundleCommand(t *testing.T) {
	var (
		mu        sync.Mutex
		requested []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write(tarGz(t, "daily_bars.csv", "ok"))
	}))
	t.Cleanup(srv.Close)

	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := &Dependencies{
		Exchange: &stubExchange{},
		Assets:   testFinder(t),
		Fetcher:  bundle.NewFetcher(bundle.NewHTTPSource(srv.URL, time.Second), root, logger),
	}

	var out bytes.Buffer
	err := testApp(&out).dispatch(context.Background(), deps, "bundle",
		[]string{"-symbol", "neo_btc", "-freq", "daily", "-start", "2017-12-01"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"/bittrex-daily-neo_btc-2017.tar.gz",
		"/bittrex-daily-neo_btc-2018.tar.gz",
	}, requested)
	data, err := os.ReadFile(filepath.Join(root, "bittrex-daily-neo_btc-2018", "daily_bars.csv"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	var dirs []string
	require.NoError(t, json.Unmarshal(out.Bytes(), &dirs))
	assert.Len(t, dirs, 2)
}

func TestBundleCommandNoData(t *testing.T) {
	deps := &Dependencies{Exchange: &stubExchange{}, Assets: testFinder(t)}
	err := testApp(io.Discard).dispatch(context.Background(), deps, "bundle",
		[]string{"-symbol", "ltc_eth", "-freq", "minute"})

	var noData *domain.NoDataAvailableError
	assert.ErrorAs(t, err, &noData)
}

func TestEncryptSecretCommand(t *testing.T) {
	cfg := config.Defaults()
	cfg.Exchange.APISecret = "s3cr3t"
	cfg.Exchange.SecretPassword = "pw"
	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)

	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, a.Run(context.Background(), "encrypt-secret", []string{"-out", path}))

	secret, err := crypto.LoadSecret(crypto.SecretConfig{EncryptedSecretPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", secret)
}

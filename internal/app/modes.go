package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/exchangegate/internal/bundle"
	"github.com/alanyoungcy/exchangegate/internal/crypto"
	"github.com/alanyoungcy/exchangegate/internal/domain"
)

type command func(a *App, ctx context.Context, deps *Dependencies, args []string) error

var commands = map[string]command{
	"balances":    (*App).balances,
	"tickers":     (*App).tickers,
	"candles":     (*App).candles,
	"orderbook":   (*App).orderBook,
	"open-orders": (*App).openOrders,
	"order":       (*App).order,
	"place":       (*App).place,
	"cancel":      (*App).cancel,
	"history":     (*App).history,
	"symbols":     (*App).refreshSymbols,
	"bundle":      (*App).fetchBundle,
}

func commandList() string {
	names := make([]string, 0, len(commands)+1)
	for n := range commands {
		names = append(names, n)
	}
	names = append(names, "encrypt-secret")
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (a *App) dispatch(ctx context.Context, deps *Dependencies, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("app: unknown command %q (valid: %s)", name, commandList())
	}
	return cmd(a, ctx, deps, args)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *App) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resolveAssets maps each requested symbol, canonical or exchange-native, to
// a known trading pair.
func resolveAssets(finder domain.AssetFinder, list string) ([]domain.TradingPair, error) {
	var wanted []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			wanted = append(wanted, s)
		}
	}
	if len(wanted) == 0 {
		return nil, &domain.InvalidArgumentError{Name: "symbols", Value: list}
	}
	if finder == nil {
		return nil, fmt.Errorf("app: no symbol catalog loaded, run the symbols command first")
	}

	assets := make([]domain.TradingPair, 0, len(wanted))
	for _, w := range wanted {
		if p, err := finder.Lookup(w); err == nil {
			assets = append(assets, p)
			continue
		}
		p, err := finder.LookupSymbol(w)
		if err != nil {
			return nil, fmt.Errorf("app: symbol %q: %w", w, domain.ErrNotFound)
		}
		assets = append(assets, p)
	}
	return assets, nil
}

func parseDate(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, &domain.InvalidArgumentError{Name: name, Value: v}
	}
	return &t, nil
}

func (a *App) balances(ctx context.Context, deps *Dependencies, _ []string) error {
	b, err := deps.Exchange.Balances(ctx)
	if err != nil {
		return err
	}
	return a.writeJSON(b)
}

func (a *App) tickers(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("tickers")
	list := fs.String("symbols", "", "comma separated symbols")
	if err := fs.Parse(args); err != nil {
		return err
	}
	assets, err := resolveAssets(deps.Assets, *list)
	if err != nil {
		return err
	}
	t, err := deps.Exchange.Tickers(ctx, assets)
	if err != nil {
		return err
	}
	return a.writeJSON(t)
}

func (a *App) candles(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("candles")
	list := fs.String("symbols", "", "comma separated symbols")
	freq := fs.String("freq", "1h", "bar frequency (1m, 5m, 30m, 1h, 1D)")
	bars := fs.Int("bars", 1, "number of bars")
	startFlag := fs.String("start", "", "drop bars before this date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	start, err := parseDate("start", *startFlag)
	if err != nil {
		return err
	}
	assets, err := resolveAssets(deps.Assets, *list)
	if err != nil {
		return err
	}
	c, err := deps.Exchange.Candles(ctx, *freq, assets, *bars, start)
	if err != nil {
		return err
	}
	return a.writeJSON(c)
}

func (a *App) orderBook(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("orderbook")
	symbol := fs.String("symbol", "", "symbol")
	side := fs.String("side", string(domain.BookSideAll), "all, bid or ask")
	depth := fs.Int("depth", 0, "levels per side (0 for the default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	assets, err := resolveAssets(deps.Assets, *symbol)
	if err != nil {
		return err
	}
	book, err := deps.Exchange.OrderBook(ctx, assets[0], domain.BookSide(*side), *depth)
	if err != nil {
		return err
	}
	return a.writeJSON(book)
}

func (a *App) openOrders(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("open-orders")
	symbol := fs.String("symbol", "", "symbol")
	if err := fs.Parse(args); err != nil {
		return err
	}
	assets, err := resolveAssets(deps.Assets, *symbol)
	if err != nil {
		return err
	}
	orders, err := deps.Exchange.OpenOrders(ctx, assets[0])
	if err != nil {
		return err
	}
	return a.writeJSON(orders)
}

func (a *App) order(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("order")
	id := fs.String("id", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return &domain.InvalidArgumentError{Name: "id", Value: *id}
	}
	o, avg, err := deps.Exchange.Order(ctx, *id)
	if err != nil {
		return err
	}
	return a.writeJSON(struct {
		Order         domain.Order    `json:"order"`
		ExecutedPrice decimal.Decimal `json:"executed_price"`
	}{o, avg})
}

func (a *App) place(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("place")
	symbol := fs.String("symbol", "", "symbol")
	side := fs.String("side", "buy", "buy or sell")
	amountFlag := fs.String("amount", "", "quantity")
	limitFlag := fs.String("limit", "", "limit price")
	stopFlag := fs.String("stop", "", "stop price")
	if err := fs.Parse(args); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil || !amount.IsPositive() {
		return &domain.InvalidArgumentError{Name: "amount", Value: *amountFlag}
	}
	var isBuy bool
	switch strings.ToLower(*side) {
	case "buy":
		isBuy = true
	case "sell":
		amount = amount.Neg()
	default:
		return &domain.InvalidArgumentError{Name: "side", Value: *side}
	}

	var style domain.OrderStyle = domain.MarketOrder{}
	if *limitFlag != "" {
		limit, err := decimal.NewFromString(*limitFlag)
		if err != nil {
			return &domain.InvalidArgumentError{Name: "limit", Value: *limitFlag}
		}
		style = domain.LimitOrder{Price: limit}
		if *stopFlag != "" {
			stop, err := decimal.NewFromString(*stopFlag)
			if err != nil {
				return &domain.InvalidArgumentError{Name: "stop", Value: *stopFlag}
			}
			style = domain.StopLimitOrder{LimitPrice: limit, StopPrice: stop}
		}
	}

	assets, err := resolveAssets(deps.Assets, *symbol)
	if err != nil {
		return err
	}
	o, err := deps.Exchange.CreateOrder(ctx, assets[0], amount, isBuy, style)
	if err != nil {
		return err
	}
	if o == nil {
		a.logger.WarnContext(ctx, "order declined by exchange", slog.String("symbol", assets[0].Symbol))
		return a.writeJSON(map[string]string{"status": "declined"})
	}
	return a.writeJSON(o)
}

func (a *App) cancel(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("cancel")
	id := fs.String("id", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return &domain.InvalidArgumentError{Name: "id", Value: *id}
	}
	if err := deps.Exchange.CancelOrder(ctx, *id); err != nil {
		return err
	}
	return a.writeJSON(map[string]string{"cancelled": *id})
}

func (a *App) history(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("history")
	symbol := fs.String("symbol", "", "canonical symbol")
	limit := fs.Int("limit", 50, "maximum orders")
	sinceFlag := fs.String("since", "", "only orders created on or after this date")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if deps.Journal == nil {
		return errors.New("app: history needs the postgres order journal enabled")
	}
	since, err := parseDate("since", *sinceFlag)
	if err != nil {
		return err
	}
	orders, err := deps.Journal.ListByAsset(ctx, deps.Exchange.Name(), *symbol, domain.ListOpts{Limit: *limit, Since: since})
	if err != nil {
		return err
	}
	return a.writeJSON(orders)
}

func (a *App) refreshSymbols(ctx context.Context, deps *Dependencies, _ []string) error {
	cat, err := deps.Exchange.RefreshSymbolCatalog(ctx)
	if err != nil {
		return err
	}
	if loader, ok := deps.Exchange.(assetLoader); ok {
		deps.Assets = loader.Assets()
	}
	a.logger.InfoContext(ctx, "symbol catalog refreshed", slog.Int("symbols", len(cat)))
	return a.writeJSON(cat)
}

func (a *App) fetchBundle(ctx context.Context, deps *Dependencies, args []string) error {
	fs := newFlagSet("bundle")
	list := fs.String("symbol", "", "comma separated symbols")
	freq := fs.String("freq", string(domain.FrequencyDaily), "daily or minute")
	startFlag := fs.String("start", "", "first date (YYYY-MM-DD)")
	endFlag := fs.String("end", "", "last date (YYYY-MM-DD)")
	listOnly := fs.Bool("list", false, "list archives in object storage and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *listOnly {
		if deps.BlobReader == nil {
			return errors.New("app: bundle -list needs the s3 bundle source")
		}
		infos, err := deps.BlobReader.List(ctx, deps.BundlePrefix)
		if err != nil {
			return err
		}
		return a.writeJSON(infos)
	}

	frequency := domain.DataFrequency(*freq)
	if !frequency.Valid() {
		return &domain.InvalidHistoryFrequencyError{Frequency: *freq}
	}
	start, err := parseDate("start", *startFlag)
	if err != nil {
		return err
	}
	end, err := parseDate("end", *endFlag)
	if err != nil {
		return err
	}
	assets, err := resolveAssets(deps.Assets, *list)
	if err != nil {
		return err
	}

	from, to, err := bundle.ResolveWindow(start, end, assets, frequency)
	if err != nil {
		return err
	}

	var chunks []bundle.Chunk
	for _, asset := range assets {
		chunks = append(chunks, bundle.Chunks(deps.Exchange.Name(), asset.Symbol, frequency, from, to)...)
	}

	dirs := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, chunk := range chunks {
		g.Go(func() error {
			dir, err := deps.Fetcher.FetchChunk(gctx, chunk)
			if err != nil {
				return fmt.Errorf("app: chunk %s: %w", chunk.Name(), err)
			}
			dirs[i] = dir
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "bundle chunks ready",
		slog.Int("chunks", len(chunks)),
		slog.Time("start", from),
		slog.Time("end", to),
	)
	return a.writeJSON(dirs)
}

// encryptSecret writes the API secret, read from EXGATE_EXCHANGE_API_SECRET
// or the config, to an encrypted file usable as encrypted_secret_path.
func (a *App) encryptSecret(args []string) error {
	fs := newFlagSet("encrypt-secret")
	out := fs.String("out", "", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return &domain.InvalidArgumentError{Name: "out", Value: *out}
	}
	data, err := crypto.EncryptSecret(a.cfg.Exchange.APISecret, a.cfg.Exchange.SecretPassword)
	if err != nil {
		return fmt.Errorf("app: encrypt secret: %w", err)
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("app: write %s: %w", *out, err)
	}
	a.logger.Info("encrypted secret written", slog.String("path", *out))
	return nil
}

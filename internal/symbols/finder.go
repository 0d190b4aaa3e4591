package symbols

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

var _ domain.AssetFinder = (*Finder)(nil)

// Finder resolves trading pairs from a catalog. SIDs are assigned from the
// sorted order of exchange symbols, starting at 1.
type Finder struct {
	pairs      []domain.TradingPair
	byExchange map[string]int
	bySymbol   map[string]int
}

// NewFinder converts catalog into trading pairs for exchange.
func NewFinder(exchange string, catalog domain.Catalog) (*Finder, error) {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := &Finder{
		pairs:      make([]domain.TradingPair, 0, len(keys)),
		byExchange: make(map[string]int, len(keys)),
		bySymbol:   make(map[string]int, len(keys)),
	}
	for i, key := range keys {
		entry := catalog[key]
		pair, err := pairFromEntry(exchange, key, entry)
		if err != nil {
			return nil, err
		}
		pair.SID = int64(i + 1)
		f.byExchange[key] = len(f.pairs)
		f.bySymbol[strings.ToLower(pair.Symbol)] = len(f.pairs)
		f.pairs = append(f.pairs, pair)
	}
	return f, nil
}

func pairFromEntry(exchange, key string, e domain.CatalogEntry) (domain.TradingPair, error) {
	start, err := time.Parse(dateLayout, e.StartDate)
	if err != nil {
		return domain.TradingPair{}, fmt.Errorf("symbols: %s: start_date: %w", key, err)
	}
	endDaily, err := optionalDate(e.EndDaily)
	if err != nil {
		return domain.TradingPair{}, fmt.Errorf("symbols: %s: end_daily: %w", key, err)
	}
	endMinute, err := optionalDate(e.EndMinute)
	if err != nil {
		return domain.TradingPair{}, fmt.Errorf("symbols: %s: end_minute: %w", key, err)
	}
	return domain.TradingPair{
		Symbol:         e.Symbol,
		ExchangeSymbol: key,
		Exchange:       exchange,
		StartDate:      start,
		EndDaily:       endDaily,
		EndMinute:      endMinute,
	}, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" || s == domain.NotAvailable {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Lookup finds a pair by its exchange-native symbol.
func (f *Finder) Lookup(exchangeSymbol string) (domain.TradingPair, error) {
	i, ok := f.byExchange[exchangeSymbol]
	if !ok {
		return domain.TradingPair{}, fmt.Errorf("symbols: lookup %s: %w", exchangeSymbol, domain.ErrNotFound)
	}
	return f.pairs[i], nil
}

// LookupSymbol finds a pair by its canonical symbol, e.g. "neo_btc",
// ignoring case.
func (f *Finder) LookupSymbol(symbol string) (domain.TradingPair, error) {
	i, ok := f.bySymbol[strings.ToLower(symbol)]
	if !ok {
		return domain.TradingPair{}, fmt.Errorf("symbols: lookup %s: %w", symbol, domain.ErrNotFound)
	}
	return f.pairs[i], nil
}

// All returns every pair ordered by exchange symbol.
func (f *Finder) All() []domain.TradingPair {
	out := make([]domain.TradingPair, len(f.pairs))
	copy(out, f.pairs)
	return out
}

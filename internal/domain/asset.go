package domain

import (
	"context"
	"time"
)

// DataFrequency is the granularity of historical data.
type DataFrequency string

const (
	FrequencyMinute DataFrequency = "minute"
	FrequencyDaily  DataFrequency = "daily"
)

// Valid reports whether f is one of the known frequencies.
func (f DataFrequency) Valid() bool {
	return f == FrequencyMinute || f == FrequencyDaily
}

// TradingPair identifies a market on an exchange together with its
// historical data coverage. EndDaily and EndMinute are nil when no data of
// that granularity is available; when set they are never before StartDate.
type TradingPair struct {
	Symbol         string // canonical, e.g. "neo_btc"
	ExchangeSymbol string // exchange-native, e.g. "BTC-NEO"
	Exchange       string
	SID            int64
	StartDate      time.Time
	EndDaily       *time.Time
	EndMinute      *time.Time
}

// LastEntry returns the last date with data at frequency f, or nil.
func (p TradingPair) LastEntry(f DataFrequency) *time.Time {
	if f == FrequencyMinute {
		return p.EndMinute
	}
	return p.EndDaily
}

// AssetFinder resolves trading pairs by their exchange-native or canonical
// symbol.
type AssetFinder interface {
	Lookup(exchangeSymbol string) (TradingPair, error)
	LookupSymbol(symbol string) (TradingPair, error)
	All() []TradingPair
}

// BundleReader reads ingested price history. GetValue returns NaN when the
// bundle has no value for the instant.
type BundleReader interface {
	GetValue(ctx context.Context, sid int64, ts time.Time, field string) (float64, error)
}

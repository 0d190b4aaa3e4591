package symbols

import (
	"strings"
	"time"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

const dateLayout = "2006-01-02"

// Listing is one market as reported by an exchange's market listing.
type Listing struct {
	ExchangeSymbol string
	MarketCurrency string
	BaseCurrency   string
	Created        time.Time
}

// CanonicalSymbol returns the exchange-independent symbol, e.g. "neo_btc".
func CanonicalSymbol(market, base string) string {
	return strings.ToLower(market) + "_" + strings.ToLower(base)
}

// Merge builds a fresh catalog from listings, keeping the end dates already
// known for each symbol in cached. Unknown end dates become domain.NotAvailable.
// Symbols missing from listings are dropped.
func Merge(cached domain.Catalog, listings []Listing) domain.Catalog {
	out := make(domain.Catalog, len(listings))
	for _, l := range listings {
		entry := domain.CatalogEntry{
			Symbol:    CanonicalSymbol(l.MarketCurrency, l.BaseCurrency),
			StartDate: l.Created.UTC().Format(dateLayout),
			EndDaily:  domain.NotAvailable,
			EndMinute: domain.NotAvailable,
		}
		if prev, ok := cached[l.ExchangeSymbol]; ok {
			if prev.EndDaily != "" {
				entry.EndDaily = prev.EndDaily
			}
			if prev.EndMinute != "" {
				entry.EndMinute = prev.EndMinute
			}
		}
		out[l.ExchangeSymbol] = entry
	}
	return out
}

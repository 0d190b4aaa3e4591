// Package exchange builds exchange gateways by name.
package exchange

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/exchangegate/internal/domain"
	"github.com/alanyoungcy/exchangegate/internal/exchange/bittrex"
)

// Deps are the collaborators shared by every gateway.
type Deps struct {
	APIKey         string
	APISecret      string
	BaseURL        string
	TicksURL       string
	RequestTimeout time.Duration

	Limiter  domain.RateLimiter
	Catalog  domain.CatalogStore
	Journal  domain.OrderJournal
	Notifier domain.OrderNotifier
	Logger   *slog.Logger
}

type factory func(Deps) domain.Exchange

var factories = map[string]factory{
	bittrex.Name: newBittrex,
}

// New returns the gateway for name. Unknown names fail with
// domain.ErrUnsupportedExchange.
func New(name string, deps Deps) (domain.Exchange, error) {
	f, ok := factories[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("exchange: %s: %w", name, domain.ErrUnsupportedExchange)
	}
	if deps.Limiter == nil {
		return nil, fmt.Errorf("exchange: %s: rate limiter is required", name)
	}
	return f(deps), nil
}

// Supported lists the exchange names New accepts.
func Supported() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func newBittrex(d Deps) domain.Exchange {
	client := bittrex.NewClient(bittrex.ClientConfig{
		BaseURL:   d.BaseURL,
		TicksURL:  d.TicksURL,
		APIKey:    d.APIKey,
		APISecret: d.APISecret,
		Timeout:   d.RequestTimeout,
	}, d.Logger)

	var opts []bittrex.Option
	if d.Journal != nil {
		opts = append(opts, bittrex.WithJournal(d.Journal))
	}
	if d.Notifier != nil {
		opts = append(opts, bittrex.WithNotifier(d.Notifier))
	}
	return bittrex.NewGateway(client, d.Limiter, d.Catalog, d.Logger, opts...)
}

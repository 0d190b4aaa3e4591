package bittrex

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Bittrex timestamps carry no zone and are UTC, e.g. "2017-10-01T00:00:00"
// or "2014-07-09T03:21:20.08".
const timeLayout = "2006-01-02T15:04:05"

// apiTime decodes exchange timestamps, with or without a zone suffix.
type apiTime struct {
	time.Time
}

func (t *apiTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}
	parsed, err := parseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(timeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func missing(field string) error {
	return fmt.Errorf("missing field %s", field)
}

type balanceDTO struct {
	Currency  *string          `json:"Currency"`
	Available *decimal.Decimal `json:"Available"`
}

func (b balanceDTO) validate() error {
	if b.Currency == nil || *b.Currency == "" {
		return missing("Currency")
	}
	if b.Available == nil {
		return missing("Available")
	}
	return nil
}

// orderDTO is the order shape shared by getorder and getopenorders.
type orderDTO struct {
	OrderUUID         *string             `json:"OrderUuid"`
	Exchange          *string             `json:"Exchange"`
	Type              string              `json:"Type"`
	OrderType         string              `json:"OrderType"`
	Quantity          *decimal.Decimal    `json:"Quantity"`
	QuantityRemaining *decimal.Decimal    `json:"QuantityRemaining"`
	Limit             decimal.NullDecimal `json:"Limit"`
	CommissionPaid    decimal.NullDecimal `json:"CommissionPaid"`
	PricePerUnit      decimal.NullDecimal `json:"PricePerUnit"`
	Opened            *apiTime            `json:"Opened"`
	Closed            *apiTime            `json:"Closed"`
	CancelInitiated   bool                `json:"CancelInitiated"`
}

func (o orderDTO) validate() error {
	var errs []error
	if o.OrderUUID == nil || *o.OrderUUID == "" {
		errs = append(errs, missing("OrderUuid"))
	}
	if o.Exchange == nil || *o.Exchange == "" {
		errs = append(errs, missing("Exchange"))
	}
	if o.Quantity == nil {
		errs = append(errs, missing("Quantity"))
	}
	if o.QuantityRemaining == nil {
		errs = append(errs, missing("QuantityRemaining"))
	}
	if o.Opened == nil || o.Opened.IsZero() {
		errs = append(errs, missing("Opened"))
	}
	if o.Quantity != nil && o.Quantity.IsNegative() {
		errs = append(errs, fmt.Errorf("field Quantity: negative value %s", o.Quantity))
	}
	if o.Quantity != nil && o.QuantityRemaining != nil {
		// filled = Quantity - QuantityRemaining must stay within [0, Quantity].
		if o.QuantityRemaining.IsNegative() || o.QuantityRemaining.GreaterThan(*o.Quantity) {
			errs = append(errs, fmt.Errorf("field QuantityRemaining: %s outside [0, %s]", o.QuantityRemaining, o.Quantity))
		}
	}
	return errors.Join(errs...)
}

// side returns the order type, which getorder reports as Type and
// getopenorders as OrderType.
func (o orderDTO) side() string {
	if o.Type != "" {
		return o.Type
	}
	return o.OrderType
}

// closed reports whether the exchange set a Closed timestamp.
func (o orderDTO) closed() bool {
	return o.Closed != nil && !o.Closed.IsZero()
}

type tickerDTO struct {
	Bid  *decimal.Decimal `json:"Bid"`
	Ask  *decimal.Decimal `json:"Ask"`
	Last *decimal.Decimal `json:"Last"`
}

func (t tickerDTO) validate() error {
	var errs []error
	if t.Bid == nil {
		errs = append(errs, missing("Bid"))
	}
	if t.Ask == nil {
		errs = append(errs, missing("Ask"))
	}
	if t.Last == nil {
		errs = append(errs, missing("Last"))
	}
	return errors.Join(errs...)
}

type bookEntryDTO struct {
	Quantity *decimal.Decimal `json:"Quantity"`
	Rate     *decimal.Decimal `json:"Rate"`
}

func (e bookEntryDTO) validate() error {
	if e.Quantity == nil {
		return missing("Quantity")
	}
	if e.Rate == nil {
		return missing("Rate")
	}
	return nil
}

type marketDTO struct {
	MarketName     string   `json:"MarketName"`
	MarketCurrency string   `json:"MarketCurrency"`
	BaseCurrency   string   `json:"BaseCurrency"`
	IsActive       bool     `json:"IsActive"`
	Created        *apiTime `json:"Created"`
}

func (m marketDTO) validate() error {
	var errs []error
	if m.MarketName == "" {
		errs = append(errs, missing("MarketName"))
	}
	if m.MarketCurrency == "" {
		errs = append(errs, missing("MarketCurrency"))
	}
	if m.BaseCurrency == "" {
		errs = append(errs, missing("BaseCurrency"))
	}
	if m.Created == nil || m.Created.IsZero() {
		errs = append(errs, missing("Created"))
	}
	return errors.Join(errs...)
}

// tickDTO is one v2 candle: {O, H, L, C, V, T}.
type tickDTO struct {
	Open, High, Low, Close, Volume decimal.Decimal
	Time                           time.Time
}

func parseTick(r gjson.Result) (tickDTO, error) {
	if !r.IsObject() {
		return tickDTO{}, fmt.Errorf("tick is %s, not an object", r.Type)
	}
	var (
		t    tickDTO
		errs []error
	)
	num := func(field string) decimal.Decimal {
		v := r.Get(field)
		if v.Type != gjson.Number {
			errs = append(errs, missing(field))
			return decimal.Zero
		}
		d, err := decimal.NewFromString(v.Raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", field, err))
		}
		return d
	}
	t.Open = num("O")
	t.High = num("H")
	t.Low = num("L")
	t.Close = num("C")
	t.Volume = num("V")

	ts := r.Get("T")
	if ts.Type != gjson.String {
		errs = append(errs, missing("T"))
	} else if parsed, err := parseTime(ts.String()); err != nil {
		errs = append(errs, err)
	} else {
		t.Time = parsed
	}
	if err := errors.Join(errs...); err != nil {
		return tickDTO{}, err
	}
	return t, nil
}

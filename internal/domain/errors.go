package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrLockHeld            = errors.New("lock already held")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
)

// ExchangeRequestError wraps any transport or decoding failure raised while
// talking to a remote exchange.
type ExchangeRequestError struct {
	Exchange string
	Op       string
	Err      error
}

func (e *ExchangeRequestError) Error() string {
	return fmt.Sprintf("%s: request %s failed: %v", e.Exchange, e.Op, e.Err)
}

func (e *ExchangeRequestError) Unwrap() error { return e.Err }

// InvalidHistoryFrequencyError reports a candle frequency token the exchange
// does not support.
type InvalidHistoryFrequencyError struct {
	Frequency string
}

func (e *InvalidHistoryFrequencyError) Error() string {
	return fmt.Sprintf("unsupported history frequency %q", e.Frequency)
}

// InvalidOrderStyleError reports an order style the exchange cannot place.
type InvalidOrderStyleError struct {
	Exchange string
	Style    string
}

func (e *InvalidOrderStyleError) Error() string {
	return fmt.Sprintf("%s: order style %s is not supported", e.Exchange, e.Style)
}

// CreateOrderError is returned when the exchange rejects an order for a reason
// that is not a soft decline.
type CreateOrderError struct {
	Exchange string
	Reason   string
}

func (e *CreateOrderError) Error() string {
	return fmt.Sprintf("%s: unable to create order: %s", e.Exchange, e.Reason)
}

type OrderNotFoundError struct {
	Exchange string
	OrderID  string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("%s: order %s not found", e.Exchange, e.OrderID)
}

// Is lets callers match an OrderNotFoundError against ErrNotFound.
func (e *OrderNotFoundError) Is(target error) bool { return target == ErrNotFound }

// OrderCancelError carries the exchange's message when a cancellation is
// refused.
type OrderCancelError struct {
	Exchange string
	OrderID  string
	Reason   string
}

func (e *OrderCancelError) Error() string {
	return fmt.Sprintf("%s: unable to cancel order %s: %s", e.Exchange, e.OrderID, e.Reason)
}

// NoDataAvailableError is returned when no valid historical window exists for
// the requested assets and frequency.
type NoDataAvailableError struct {
	Exchange  string
	Symbols   []string
	Frequency DataFrequency
}

func (e *NoDataAvailableError) Error() string {
	return fmt.Sprintf("%s: no %s data available for %s",
		e.Exchange, e.Frequency, strings.Join(e.Symbols, ", "))
}

// DownloadError reports a failed archive download. StatusCode is zero when the
// failure happened before a response was received.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// PathTraversalError is returned when an archive entry would be written outside
// the extraction directory.
type PathTraversalError struct {
	Entry string
	Dest  string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("archive entry %q escapes destination %s", e.Entry, e.Dest)
}

type InvalidArgumentError struct {
	Name  string
	Value string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Name, e.Value)
}

// Package notify delivers order lifecycle alerts to operators over one or
// more channels (Telegram, Discord). Events can be filtered by type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

// Event types understood by the notifier.
const (
	EventOrderCreated   = "order_created"
	EventOrderDeclined  = "order_declined"
	EventOrderCancelled = "order_cancelled"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

var _ domain.OrderNotifier = (*Notifier)(nil)

// Notifier dispatches notifications to one or more Senders, forwarding only
// the event types it was configured with. An empty event list allows all.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// OrderCreated reports a newly placed order.
func (n *Notifier) OrderCreated(ctx context.Context, exchange string, order domain.Order) {
	side := "BUY"
	if !order.IsBuy() {
		side = "SELL"
	}
	msg := fmt.Sprintf("%s %s %s @ %s\nid: %s",
		side, order.Amount.Abs().String(), order.Asset.Symbol, order.LimitPrice.Decimal.String(), order.ID)
	n.report(ctx, EventOrderCreated, exchange+": order created", msg)
}

// OrderDeclined reports an order the exchange softly declined.
func (n *Notifier) OrderDeclined(ctx context.Context, exchange string, asset domain.TradingPair, amount decimal.Decimal, reason string) {
	msg := fmt.Sprintf("%s %s declined: %s", amount.String(), asset.Symbol, reason)
	n.report(ctx, EventOrderDeclined, exchange+": order declined", msg)
}

// OrderCancelled reports a cancelled order.
func (n *Notifier) OrderCancelled(ctx context.Context, exchange, orderID string) {
	n.report(ctx, EventOrderCancelled, exchange+": order cancelled", "id: "+orderID)
}

func (n *Notifier) report(ctx context.Context, event, title, message string) {
	if err := n.Notify(ctx, event, title, message); err != nil {
		n.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch sends to every sender. One sender failing does not stop delivery
// to the rest; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

package notify

import (
	"context"

	"github.com/muaviaUsmani/autobuy/internal/logger"
)

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes events to the order log. It is always wired so events
// are visible even with no external channel configured.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a notifier that logs through l
func NewLogNotifier(l logger.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.OrDefault(l).
			WithComponent(logger.ComponentNotifier).
			WithSource(logger.LogSourceOrder),
	}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	args := []interface{}{"kind", string(event.Kind)}

	if tx := event.Transaction; tx != nil {
		args = append(args,
			"transaction_id", tx.ID,
			"product_id", tx.ProductID,
			"amount", tx.Amount.String(),
			"status", string(tx.Status))
		if tx.OrderID != "" {
			ctx = logger.ContextWithOrderID(ctx, tx.OrderID)
		}
		if tx.Error != "" {
			args = append(args, "error", tx.Error)
		}
	}
	if fill := event.Fill; fill != nil {
		args = append(args,
			"filled_size", fill.FilledSize.String(),
			"filled_value", fill.FilledValue.String(),
			"average_price", fill.AverageFilledPrice.String())
	}
	if event.Status != "" {
		args = append(args, "exchange_status", event.Status)
	}
	if s := event.Startup; s != nil {
		args = append(args, "product_id", s.ProductID, "amount", s.Amount.String(), "schedule", s.Schedule)
	}

	switch {
	case event.Kind == KindOrderClosed:
		n.logger.WarnContext(ctx, "Order closed without fill", args...)
	case event.Transaction != nil && !event.Transaction.IsSuccess():
		n.logger.ErrorContext(ctx, "Buy attempt failed", args...)
	default:
		n.logger.InfoContext(ctx, "Lifecycle event", args...)
	}
	return nil
}

// Package tracker follows placed orders until the exchange reports a
// terminal status, then emits one lifecycle event per order.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
	"github.com/muaviaUsmani/autobuy/internal/logger"
	"github.com/muaviaUsmani/autobuy/internal/metrics"
	"github.com/muaviaUsmani/autobuy/internal/notify"
)

// CheckJob switches the periodic poll on and off. Both calls are idempotent
// and report whether they changed anything.
type CheckJob interface {
	ActivateOrderChecking() bool
	DeactivateOrderChecking() bool
}

// TrackedOrder is an order whose outcome is not known yet
type TrackedOrder struct {
	OrderID       string             `json:"order_id"`
	Transaction   ledger.Transaction `json:"transaction"`
	CreatedAt     time.Time          `json:"created_at"`
	LastCheckedAt time.Time          `json:"last_checked_at"`
	Checks        int                `json:"checks"`
	LastStatus    string             `json:"last_status,omitempty"`
}

// PollSummary describes one PollAll pass
type PollSummary struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
	Remaining int `json:"remaining"`
}

// Tracker owns the set of in-flight orders.
//
// Lock order: Tracker.mu is taken before any lock inside the CheckJob, so
// activation and deactivation always agree with the set they describe.
type Tracker struct {
	mu     sync.Mutex
	orders map[string]*TrackedOrder

	gateway  broker.Gateway
	notifier notify.Notifier
	checkJob CheckJob
	metrics  *metrics.Collector
	logger   logger.Logger
	now      func() time.Time
}

// New creates an empty tracker. A nil notifier drops events.
func New(gateway broker.Gateway, notifier notify.Notifier, log logger.Logger) *Tracker {
	return &Tracker{
		orders:   make(map[string]*TrackedOrder),
		gateway:  gateway,
		notifier: notifier,
		metrics:  metrics.Default(),
		logger: logger.OrDefault(log).
			WithComponent(logger.ComponentTracker).
			WithSource(logger.LogSourceOrder),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetCheckJob wires the scheduler controlling the poll job
func (t *Tracker) SetCheckJob(job CheckJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkJob = job
}

// SetMetrics replaces the metrics collector
func (t *Tracker) SetMetrics(c *metrics.Collector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = metrics.OrDefault(c)
}

// Register starts tracking tx's order and activates the check job. It
// returns false when tx carries no order id or the order is already tracked.
func (t *Tracker) Register(tx ledger.Transaction) bool {
	if tx.OrderID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.orders[tx.OrderID]; exists {
		return false
	}

	now := t.now()
	t.orders[tx.OrderID] = &TrackedOrder{
		OrderID:       tx.OrderID,
		Transaction:   tx,
		CreatedAt:     now,
		LastCheckedAt: now,
	}
	t.metrics.RecordPendingOrders(len(t.orders))

	activated := false
	if t.checkJob != nil {
		activated = t.checkJob.ActivateOrderChecking()
	}
	t.logger.Info("Tracking order",
		"order_id", tx.OrderID,
		"transaction_id", tx.ID,
		"pending", len(t.orders),
		"check_job_activated", activated)
	return true
}

// PollAll queries the exchange once for every tracked order, sequentially.
// Orders reaching a terminal state are removed and reported; a failed
// query leaves its order tracked for the next pass.
func (t *Tracker) PollAll(ctx context.Context) PollSummary {
	t.mu.Lock()
	snapshot := make([]string, 0, len(t.orders))
	for id := range t.orders {
		snapshot = append(snapshot, id)
	}
	t.mu.Unlock()
	sort.Strings(snapshot)

	var summary PollSummary
	for _, orderID := range snapshot {
		if ctx.Err() != nil {
			break
		}
		summary.Checked++

		status, err := t.gateway.GetOrderStatus(ctx, orderID)
		checkedAt := t.now()
		if err != nil {
			summary.Errors++
			t.metrics.RecordPoll(true)
			t.touch(orderID, checkedAt, "")
			t.logger.WarnContext(logger.ContextWithOrderID(ctx, orderID),
				"Order status check failed, will retry",
				"error", errors.WrapTransientPoll(err, orderID))
			continue
		}
		t.metrics.RecordPoll(false)

		state := Classify(status)
		tracked, removed := t.settle(orderID, checkedAt, status.Status, state)
		if !removed {
			t.logger.DebugContext(logger.ContextWithOrderID(ctx, orderID),
				"Order still open",
				"exchange_status", status.Status,
				"completion", status.CompletionPercentage.String())
			continue
		}

		summary.Completed++
		t.metrics.RecordOrderOutcome(string(state))
		t.emit(ctx, tracked, status, state)
	}

	t.mu.Lock()
	summary.Remaining = len(t.orders)
	t.metrics.RecordPendingOrders(summary.Remaining)
	if summary.Remaining == 0 && t.checkJob != nil {
		if t.checkJob.DeactivateOrderChecking() {
			t.logger.Info("No pending orders, order checking stopped")
		}
	}
	t.mu.Unlock()

	return summary
}

// touch records a check on an order that stays tracked
func (t *Tracker) touch(orderID string, at time.Time, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.orders[orderID]; ok {
		o.LastCheckedAt = at
		o.Checks++
		if status != "" {
			o.LastStatus = status
		}
	}
}

// settle applies one observation. Only the caller that removes the order
// gets removed == true, so each order is reported once.
func (t *Tracker) settle(orderID string, at time.Time, status string, state State) (TrackedOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[orderID]
	if !ok {
		return TrackedOrder{}, false
	}
	o.LastCheckedAt = at
	o.Checks++
	o.LastStatus = status
	if !state.Terminal() {
		return TrackedOrder{}, false
	}
	delete(t.orders, orderID)
	return *o, true
}

func (t *Tracker) emit(ctx context.Context, order TrackedOrder, status broker.OrderStatus, state State) {
	ctx = logger.ContextWithOrderID(ctx, order.OrderID)

	var event notify.Event
	if state == StateFilled {
		event = notify.OrderFilled(order.Transaction, status)
		t.logger.InfoContext(ctx, "Order filled",
			"filled_size", status.FilledSize.String(),
			"filled_value", status.FilledValue.String(),
			"average_price", status.AverageFilledPrice.String(),
			"checks", order.Checks)
	} else {
		event = notify.OrderClosed(order.Transaction, status.Status)
		t.logger.WarnContext(ctx, "Order closed without fill",
			"state", string(state),
			"exchange_status", status.Status,
			"checks", order.Checks)
	}

	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(ctx, event); err != nil {
		t.logger.ErrorContext(ctx, "Failed to deliver order notification",
			"kind", string(event.Kind), "error", err)
	}
}

// Size returns the number of tracked orders
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}

// Pending returns copies of the tracked orders, oldest first
func (t *Tracker) Pending() []TrackedOrder {
	t.mu.Lock()
	out := make([]TrackedOrder, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, *o)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns a copy of one tracked order
func (t *Tracker) Get(orderID string) (TrackedOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok {
		return TrackedOrder{}, false
	}
	return *o, true
}

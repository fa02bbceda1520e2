// Package notify delivers order lifecycle events out of band. Delivery is
// best effort: callers log a Notify error and carry on.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
)

// Kind names a lifecycle event
type Kind string

const (
	KindProcessStarted Kind = "process_started"
	KindOrderPlaced    Kind = "order_placed"
	KindOrderFilled    Kind = "order_filled"
	KindOrderClosed    Kind = "order_closed"
)

// StartupInfo is the configuration announced when the process starts
type StartupInfo struct {
	ProductID  string          `json:"product_id"`
	Amount     decimal.Decimal `json:"amount"`
	Schedule   string          `json:"schedule"`
	BrokerMode string          `json:"broker_mode,omitempty"`
}

// Event is one lifecycle notification. Which optional fields are set
// depends on Kind.
type Event struct {
	Kind        Kind                `json:"kind"`
	Time        time.Time           `json:"time"`
	Startup     *StartupInfo        `json:"startup,omitempty"`
	Transaction *ledger.Transaction `json:"transaction,omitempty"`
	Fill        *broker.OrderStatus `json:"fill,omitempty"`
	// Status is the exchange status that closed an order without a fill
	Status string `json:"status,omitempty"`
}

// ProcessStarted announces the running configuration
func ProcessStarted(info StartupInfo) Event {
	return Event{Kind: KindProcessStarted, Time: time.Now().UTC(), Startup: &info}
}

// OrderPlaced reports a buy attempt, successful or failed
func OrderPlaced(tx ledger.Transaction) Event {
	return Event{Kind: KindOrderPlaced, Time: time.Now().UTC(), Transaction: &tx}
}

// OrderFilled reports a tracked order that filled
func OrderFilled(tx ledger.Transaction, fill broker.OrderStatus) Event {
	return Event{Kind: KindOrderFilled, Time: time.Now().UTC(), Transaction: &tx, Fill: &fill}
}

// OrderClosed reports a tracked order that ended without a fill
func OrderClosed(tx ledger.Transaction, status string) Event {
	return Event{Kind: KindOrderClosed, Time: time.Now().UTC(), Transaction: &tx, Status: status}
}

// Notifier delivers events
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every notifier. All of them are tried; the
// returned error lists the ones that failed.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var failures []string
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			if first == nil {
				first = err
			}
			failures = append(failures, err.Error())
		}
	}
	if first == nil {
		return nil
	}
	if len(failures) == 1 {
		return first
	}
	return errors.Newf("%d notifiers failed: %s", len(failures), strings.Join(failures, "; "))
}

package tracker

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/broker"
)

// State is where an order sits in its lifecycle
type State string

const (
	// StateTracking is the only non-terminal state
	StateTracking  State = "TRACKING"
	StateFilled    State = "FILLED"
	StateCancelled State = "CANCELLED"
	StateExpired   State = "EXPIRED"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s != StateTracking
}

var hundred = decimal.NewFromInt(100)

// Classify maps an exchange observation onto a lifecycle state. Unknown and
// partially filled statuses keep the order tracking. Full completion wins
// over any status name.
func Classify(status broker.OrderStatus) State {
	if status.CompletionPercentage.GreaterThanOrEqual(hundred) {
		return StateFilled
	}
	switch strings.ToUpper(strings.TrimSpace(status.Status)) {
	case "FILLED", "DONE", "COMPLETED":
		return StateFilled
	case "CANCELLED", "CANCELED":
		return StateCancelled
	case "EXPIRED":
		return StateExpired
	case "FAILED", "REJECTED":
		return StateFailed
	}
	return StateTracking
}

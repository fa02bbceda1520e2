// Package ledger is the append-only record of every buy attempt.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/logger"
)

// Status is the outcome of one buy attempt
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Transaction is one buy attempt. It is never mutated after Record returns it.
type Transaction struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	ProductID string              `json:"product_id"`
	Amount    decimal.Decimal     `json:"amount"`
	Price     decimal.NullDecimal `json:"price"`
	OrderID   string              `json:"order_id,omitempty"`
	Status    Status              `json:"status"`
	Error     string              `json:"error,omitempty"`
	Manual    bool                `json:"manual"`
}

// IsSuccess reports whether the attempt placed an order
func (t Transaction) IsSuccess() bool {
	return t.Status == StatusSuccess
}

// Attempt is what the purchase routine hands to Record
type Attempt struct {
	ProductID string
	Amount    decimal.Decimal
	Price     decimal.NullDecimal
	OrderID   string
	Err       error
	Manual    bool
}

// Sink receives a copy of every recorded transaction. Sinks are best effort:
// their errors are logged and never reach the caller of Record.
type Sink interface {
	Append(ctx context.Context, tx Transaction) error
}

// sinkTimeout bounds each sink write so a slow store never stalls a buy
const sinkTimeout = 5 * time.Second

// Ledger keeps transactions in commit order
type Ledger struct {
	mu      sync.RWMutex
	entries []Transaction

	sinks  []Sink
	now    func() time.Time
	logger logger.Logger
}

// New creates an empty ledger that mirrors entries to sinks
func New(log logger.Logger, sinks ...Sink) *Ledger {
	return &Ledger{
		sinks:  sinks,
		now:    time.Now,
		logger: logger.OrDefault(log).WithComponent(logger.ComponentLedger),
	}
}

// Record turns an attempt into a Transaction and appends it. It never fails:
// a failed attempt becomes a Failed entry.
func (l *Ledger) Record(a Attempt) Transaction {
	tx := Transaction{
		ID:        uuid.New().String(),
		ProductID: a.ProductID,
		Amount:    a.Amount,
		Price:     a.Price,
		OrderID:   a.OrderID,
		Status:    StatusSuccess,
		Manual:    a.Manual,
	}
	if a.Err != nil {
		tx.Status = StatusFailed
		tx.Error = a.Err.Error()
	}

	// the timestamp is taken under the lock so entries stay chronological
	l.mu.Lock()
	tx.Timestamp = l.now().UTC()
	l.entries = append(l.entries, tx)
	l.mu.Unlock()

	l.mirror(tx)
	return tx
}

func (l *Ledger) mirror(tx Transaction) {
	for _, sink := range l.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.Append(ctx, tx); err != nil {
			l.logger.Warn("Failed to mirror transaction",
				"sink", fmt.Sprintf("%T", sink),
				"transaction_id", tx.ID,
				"error", err)
		}
		cancel()
	}
}

// All returns every entry, oldest first
func (l *Ledger) All() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Transaction, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recent returns up to n entries, newest first. n <= 0 returns all of them.
func (l *Ledger) Recent(n int) []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Transaction, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Len returns the number of recorded attempts
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

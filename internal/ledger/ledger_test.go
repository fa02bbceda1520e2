package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/logger"
)

type recordingSink struct {
	mu  sync.Mutex
	txs []Transaction
	err error
}

func (s *recordingSink) Append(_ context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
	return s.err
}

func TestRecordSuccess(t *testing.T) {
	l := New(&logger.NoOpLogger{})
	fixed := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	tx := l.Record(Attempt{
		ProductID: "BTC-EUR",
		Amount:    decimal.NewFromInt(30),
		Price:     decimal.NewNullDecimal(decimal.NewFromInt(50000)),
		OrderID:   "abc123",
	})

	if tx.Status != StatusSuccess || !tx.IsSuccess() {
		t.Errorf("expected success, got %s", tx.Status)
	}
	if tx.ID == "" {
		t.Error("expected a transaction id")
	}
	if !tx.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", tx.Timestamp, fixed)
	}
	if tx.OrderID != "abc123" || tx.Error != "" {
		t.Errorf("unexpected transaction %+v", tx)
	}
	if !tx.Price.Valid || !tx.Price.Decimal.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("unexpected price %v", tx.Price)
	}
}

func TestRecordFailure(t *testing.T) {
	l := New(&logger.NoOpLogger{})

	tx := l.Record(Attempt{
		ProductID: "BTC-EUR",
		Amount:    decimal.NewFromInt(30),
		Err:       errors.ExchangeErrorf("insufficient funds"),
	})

	if tx.Status != StatusFailed {
		t.Errorf("expected failed, got %s", tx.Status)
	}
	if tx.Error != "insufficient funds" {
		t.Errorf("Error = %q", tx.Error)
	}
	if tx.Price.Valid {
		t.Error("expected no price")
	}
	if l.Len() != 1 {
		t.Errorf("expected failed attempt to be recorded, Len = %d", l.Len())
	}
}

func TestAllKeepsCommitOrder(t *testing.T) {
	l := New(&logger.NoOpLogger{})

	for _, id := range []string{"A", "B", "C"} {
		l.Record(Attempt{ProductID: "BTC-EUR", Amount: decimal.NewFromInt(1), OrderID: id})
	}

	all := l.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i, id := range []string{"A", "B", "C"} {
		if all[i].OrderID != id {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].OrderID, id)
		}
	}

	recent := l.Recent(2)
	if len(recent) != 2 || recent[0].OrderID != "C" || recent[1].OrderID != "B" {
		t.Errorf("Recent(2) = %+v", recent)
	}
	if len(l.Recent(0)) != 3 || len(l.Recent(10)) != 3 {
		t.Error("Recent with n <= 0 or n > len should return everything")
	}
}

func TestAllReturnsCopy(t *testing.T) {
	l := New(&logger.NoOpLogger{})
	l.Record(Attempt{ProductID: "BTC-EUR", OrderID: "A"})

	all := l.All()
	all[0].OrderID = "mutated"

	if l.All()[0].OrderID != "A" {
		t.Error("ledger entries must not be mutable through All()")
	}
}

func TestConcurrentRecord(t *testing.T) {
	l := New(&logger.NoOpLogger{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(Attempt{ProductID: "BTC-EUR", Amount: decimal.NewFromInt(1)})
		}()
	}
	wg.Wait()

	all := l.All()
	if len(all) != 50 {
		t.Fatalf("expected 50 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("entry %d is older than entry %d", i, i-1)
		}
	}
}

func TestSinksReceiveEntriesAndErrorsAreSwallowed(t *testing.T) {
	ok := &recordingSink{}
	broken := &recordingSink{err: errors.New("disk full")}
	l := New(&logger.NoOpLogger{}, broken, ok)

	tx := l.Record(Attempt{ProductID: "ETH-EUR", Amount: decimal.NewFromInt(5), OrderID: "o-1"})

	if len(ok.txs) != 1 || ok.txs[0].ID != tx.ID {
		t.Errorf("sink did not receive the transaction: %+v", ok.txs)
	}
	if len(broken.txs) != 1 {
		t.Error("failing sink should still be called")
	}
	if l.Len() != 1 {
		t.Error("sink failure must not affect the ledger")
	}
}

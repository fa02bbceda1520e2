package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalAppendAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 15, 8, 0, 0, 123, time.UTC)

	first := Transaction{
		ID:        "tx-1",
		Timestamp: ts,
		ProductID: "BTC-EUR",
		Amount:    decimal.RequireFromString("30"),
		Price:     decimal.NewNullDecimal(decimal.RequireFromString("50000.12")),
		OrderID:   "abc123",
		Status:    StatusSuccess,
	}
	second := Transaction{
		ID:        "tx-2",
		Timestamp: ts.Add(time.Hour),
		ProductID: "BTC-EUR",
		Amount:    decimal.RequireFromString("15"),
		Status:    StatusFailed,
		Error:     "exchange error: timeout",
		Manual:    true,
	}

	for _, tx := range []Transaction{first, second} {
		if err := j.Append(ctx, tx); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	// duplicate ids are ignored
	if err := j.Append(ctx, first); err != nil {
		t.Fatalf("Append() duplicate error = %v", err)
	}

	list, err := j.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(list))
	}

	got := list[0]
	if got.ID != "tx-2" || !got.Manual || got.Status != StatusFailed || got.Error != second.Error {
		t.Errorf("unexpected newest row %+v", got)
	}
	if got.Price.Valid {
		t.Error("failed row should have no price")
	}

	got = list[1]
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
	if !got.Price.Valid || !got.Price.Decimal.Equal(first.Price.Decimal) {
		t.Errorf("Price = %v, want %v", got.Price, first.Price)
	}
	if !got.Amount.Equal(first.Amount) || got.OrderID != "abc123" {
		t.Errorf("unexpected oldest row %+v", got)
	}

	limited, err := j.List(ctx, 1)
	if err != nil {
		t.Fatalf("List(1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "tx-2" {
		t.Errorf("List(1) = %+v", limited)
	}
}

func TestJournalAsLedgerSink(t *testing.T) {
	j := openTestJournal(t)
	l := New(nil, j)

	tx := l.Record(Attempt{ProductID: "BTC-EUR", Amount: decimal.NewFromInt(30), OrderID: "o-1"})

	list, err := j.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != tx.ID {
		t.Errorf("journal did not receive the transaction: %+v", list)
	}
}

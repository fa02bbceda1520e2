package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

func TestPaperBrokerLifecycle(t *testing.T) {
	ctx := context.Background()
	pb := NewPaperBroker(DefaultPaperConfig())

	price, err := pb.GetPrice(ctx, "BTC-EUR")
	if err != nil || !price.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("GetPrice() = %s, %v", price, err)
	}

	placed, err := pb.PlaceOrder(ctx, "BTC-EUR", decimal.NewFromInt(30))
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if len(placed.OrderID) < len("PAPER-") || placed.OrderID[:6] != "PAPER-" {
		t.Errorf("unexpected order id %q", placed.OrderID)
	}

	// FillAfter = 1: first poll still open
	status, err := pb.GetOrderStatus(ctx, placed.OrderID)
	if err != nil {
		t.Fatalf("GetOrderStatus() error = %v", err)
	}
	if status.Status != StatusOpen {
		t.Errorf("first poll status = %s, want OPEN", status.Status)
	}

	status, _ = pb.GetOrderStatus(ctx, placed.OrderID)
	if status.Status != StatusFilled || !status.CompletionPercentage.Equal(decimal.NewFromInt(100)) {
		t.Errorf("second poll = %+v, want FILLED", status)
	}
	if status.LastFillTime == nil {
		t.Error("filled order should have a fill time")
	}

	balances, _ := pb.Balances(ctx)
	if eur := FindBalance(balances, "EUR"); !eur.Available.Equal(decimal.NewFromInt(970)) {
		t.Errorf("EUR = %s, want 970", eur.Available)
	}
	if btc := FindBalance(balances, "BTC"); !btc.Available.Equal(placed.BaseSize) {
		t.Errorf("BTC = %s, want %s", btc.Available, placed.BaseSize)
	}
}

func TestPaperBrokerErrors(t *testing.T) {
	ctx := context.Background()
	pb := NewPaperBroker(DefaultPaperConfig())

	if _, err := pb.GetPrice(ctx, "DOGE-EUR"); !errors.IsExchangeError(err) {
		t.Errorf("unknown product: expected exchange error, got %v", err)
	}
	if _, err := pb.PlaceOrder(ctx, "BTC-EUR", decimal.NewFromInt(5000)); !errors.IsExchangeError(err) {
		t.Errorf("insufficient funds: expected exchange error, got %v", err)
	}
	if _, err := pb.GetOrderStatus(ctx, "nope"); !errors.IsExchangeError(err) {
		t.Errorf("unknown order: expected exchange error, got %v", err)
	}
}

func TestPaperBrokerCancel(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultPaperConfig()
	cfg.FillAfter = 10
	pb := NewPaperBroker(cfg)

	placed, err := pb.PlaceOrder(ctx, "BTC-EUR", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if err := pb.Cancel(placed.OrderID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	status, _ := pb.GetOrderStatus(ctx, placed.OrderID)
	if status.Status != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", status.Status)
	}
	balances, _ := pb.Balances(ctx)
	if eur := FindBalance(balances, "EUR"); !eur.Available.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("cancel should refund, EUR = %s", eur.Available)
	}
	if err := pb.Cancel(placed.OrderID); err == nil {
		t.Error("cancelling twice should fail")
	}
}

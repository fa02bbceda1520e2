package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
	"github.com/muaviaUsmani/autobuy/internal/logger"
)

func sampleTransaction() ledger.Transaction {
	return ledger.Transaction{
		ID:        "tx-1",
		Timestamp: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
		ProductID: "BTC-EUR",
		Amount:    decimal.NewFromInt(30),
		Price:     decimal.NewNullDecimal(decimal.NewFromInt(50000)),
		OrderID:   "abc123",
		Status:    ledger.StatusSuccess,
	}
}

func sampleFill() broker.OrderStatus {
	last := time.Date(2024, 1, 15, 8, 3, 0, 0, time.UTC)
	return broker.OrderStatus{
		OrderID:              "abc123",
		Status:               "FILLED",
		CompletionPercentage: decimal.NewFromInt(100),
		FilledSize:           decimal.RequireFromString("0.0006"),
		FilledValue:          decimal.RequireFromString("29.85"),
		AverageFilledPrice:   decimal.NewFromInt(49750),
		TotalFees:            decimal.RequireFromString("0.18"),
		LastFillTime:         &last,
	}
}

func TestFormat(t *testing.T) {
	tx := sampleTransaction()
	failed := tx
	failed.Status = ledger.StatusFailed
	failed.Error = "insufficient funds"

	tests := []struct {
		name  string
		event Event
		want  []string
	}{
		{
			name: "startup",
			event: ProcessStarted(StartupInfo{
				ProductID: "BTC-EUR", Amount: decimal.NewFromInt(30), Schedule: "Weekly on Monday at 08:00 UTC",
			}),
			want: []string{"Scheduler Started", "`BTC-EUR`", "`30 EUR`", "`Weekly on Monday at 08:00 UTC`"},
		},
		{
			name:  "placed",
			event: OrderPlaced(tx),
			want:  []string{"Order Placed Successfully", "`abc123`", "`50000`", "`2024-01-15T08:00:00Z`"},
		},
		{
			name:  "failed",
			event: OrderPlaced(failed),
			want:  []string{"Order Failed", "`insufficient funds`"},
		},
		{
			name:  "filled",
			event: OrderFilled(tx, sampleFill()),
			want:  []string{"Order Filled", "`FILLED`", "`29.85 EUR`", "`0.0006`", "`49750`", "`0.18 EUR`", "`2024-01-15T08:03:00Z`"},
		},
		{
			name:  "closed",
			event: OrderClosed(tx, "CANCELLED"),
			want:  []string{"Closed Without Fill", "`CANCELLED`"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Format(tt.event)
			for _, want := range tt.want {
				if !strings.Contains(msg, want) {
					t.Errorf("message missing %q:\n%s", want, msg)
				}
			}
		})
	}
}

func TestTelegramNotifier(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", srv.URL)
	if err := n.Notify(context.Background(), OrderPlaced(sampleTransaction())); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got["chat_id"] != "42" || got["parse_mode"] != "Markdown" {
		t.Errorf("unexpected payload %v", got)
	}
	if !strings.Contains(got["text"], "abc123") {
		t.Errorf("text missing order id: %q", got["text"])
	}
}

func TestTelegramNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := NewTelegramNotifier("TOKEN", "42", srv.URL).Send(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestTelegramErrorHidesToken(t *testing.T) {
	// nothing listens on this port
	n := NewTelegramNotifier("SECRET-TOKEN", "42", "http://127.0.0.1:1")
	err := n.Send(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "SECRET-TOKEN") {
		t.Errorf("error leaks the bot token: %v", err)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var event Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Autobuy-Event")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &event)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Notify(context.Background(), OrderFilled(sampleTransaction(), sampleFill())); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if header != string(KindOrderFilled) || event.Kind != KindOrderFilled {
		t.Errorf("kind header=%q body=%q", header, event.Kind)
	}
	if event.Fill == nil || event.Fill.Status != "FILLED" || event.Transaction.OrderID != "abc123" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Notify(context.Background(), OrderPlaced(sampleTransaction())); err == nil {
		t.Error("expected error for 500")
	}
}

type countingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *countingNotifier) Notify(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func TestMulti(t *testing.T) {
	a := &countingNotifier{}
	b := &countingNotifier{err: errors.New("b down")}
	c := &countingNotifier{}

	err := Multi{a, b, nil, c}.Notify(context.Background(), OrderPlaced(sampleTransaction()))
	if err == nil || err.Error() != "b down" {
		t.Errorf("expected the single failure, got %v", err)
	}
	if len(a.events) != 1 || len(c.events) != 1 {
		t.Error("every notifier should be tried even after a failure")
	}

	d := &countingNotifier{err: errors.New("d down")}
	err = Multi{b, d}.Notify(context.Background(), OrderPlaced(sampleTransaction()))
	if err == nil || !strings.Contains(err.Error(), "2 notifiers failed") {
		t.Errorf("expected combined error, got %v", err)
	}

	if err := (Multi{}).Notify(context.Background(), Event{}); err != nil {
		t.Errorf("empty multi should succeed, got %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(&logger.NoOpLogger{})
	tx := sampleTransaction()

	events := []Event{
		ProcessStarted(StartupInfo{ProductID: "BTC-EUR", Amount: decimal.NewFromInt(30)}),
		OrderPlaced(tx),
		OrderFilled(tx, sampleFill()),
		OrderClosed(tx, "EXPIRED"),
	}
	for _, e := range events {
		if err := n.Notify(context.Background(), e); err != nil {
			t.Errorf("LogNotifier should never fail, got %v", err)
		}
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(&logger.NoOpLogger{}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Notify(context.Background(), OrderClosed(sampleTransaction(), "CANCELLED")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var event Event
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Kind != KindOrderClosed || event.Status != "CANCELLED" {
		t.Errorf("unexpected event %+v", event)
	}

	hub.Close()
	if hub.ClientCount() != 0 {
		t.Error("Close should drop every client")
	}
}

package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
	"github.com/muaviaUsmani/autobuy/internal/logger"
	"github.com/muaviaUsmani/autobuy/internal/metrics"
	"github.com/muaviaUsmani/autobuy/internal/notify"
)

// fakeGateway answers order status queries from a map
type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]broker.OrderStatus
	failures map[string]error
	queries  map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: make(map[string]broker.OrderStatus),
		failures: make(map[string]error),
		queries:  make(map[string]int),
	}
}

func (g *fakeGateway) set(orderID, status, completion string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[orderID] = broker.OrderStatus{
		OrderID:              orderID,
		Status:               status,
		CompletionPercentage: decimal.RequireFromString(completion),
		FilledSize:           decimal.RequireFromString("0.0006"),
		FilledValue:          decimal.RequireFromString("29.85"),
		AverageFilledPrice:   decimal.RequireFromString("49750"),
	}
	delete(g.failures, orderID)
}

func (g *fakeGateway) fail(orderID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[orderID] = err
}

func (g *fakeGateway) queryCount(orderID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queries[orderID]
}

func (g *fakeGateway) GetPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	return decimal.NewFromInt(50000), nil
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, productID string, amount decimal.Decimal) (broker.PlacedOrder, error) {
	return broker.PlacedOrder{}, errors.New("not used")
}

func (g *fakeGateway) GetOrderStatus(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries[orderID]++
	if err, ok := g.failures[orderID]; ok {
		return broker.OrderStatus{}, err
	}
	if s, ok := g.statuses[orderID]; ok {
		return s, nil
	}
	return broker.OrderStatus{OrderID: orderID, Status: "OPEN"}, nil
}

func (g *fakeGateway) Balances(ctx context.Context) ([]broker.Balance, error) {
	return nil, nil
}

// fakeCheckJob mirrors the scheduler's idempotent activation
type fakeCheckJob struct {
	mu          sync.Mutex
	active      bool
	activations int
	deactivated int
}

func (j *fakeCheckJob) ActivateOrderChecking() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active {
		return false
	}
	j.active = true
	j.activations++
	return true
}

func (j *fakeCheckJob) DeactivateOrderChecking() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.active {
		return false
	}
	j.active = false
	j.deactivated++
	return true
}

func (j *fakeCheckJob) isActive() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) snapshot() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeGateway, *recordingNotifier, *fakeCheckJob) {
	t.Helper()
	gw := newFakeGateway()
	n := &recordingNotifier{}
	job := &fakeCheckJob{}
	tr := New(gw, n, &logger.NoOpLogger{})
	tr.SetCheckJob(job)
	tr.SetMetrics(metrics.NewCollector())
	return tr, gw, n, job
}

func tx(orderID string) ledger.Transaction {
	return ledger.Transaction{
		ID:        "tx-" + orderID,
		Timestamp: time.Now().UTC(),
		ProductID: "BTC-EUR",
		Amount:    decimal.NewFromInt(30),
		Price:     decimal.NewNullDecimal(decimal.NewFromInt(50000)),
		OrderID:   orderID,
		Status:    ledger.StatusSuccess,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status     string
		completion string
		want       State
	}{
		{"FILLED", "100", StateFilled},
		{"filled", "0", StateFilled},
		{"DONE", "0", StateFilled},
		{"Completed", "0", StateFilled},
		{"OPEN", "100", StateFilled},
		{"OPEN", "100.0", StateFilled},
		{"CANCELLED", "0", StateCancelled},
		{"CANCELED", "0", StateCancelled},
		{"CANCELLED", "100", StateFilled},
		{"EXPIRED", "0", StateExpired},
		{"FAILED", "0", StateFailed},
		{"REJECTED", "0", StateFailed},
		{"OPEN", "0", StateTracking},
		{"OPEN", "45.5", StateTracking},
		{"PENDING", "0", StateTracking},
		{"QUEUED", "99.99", StateTracking},
		{"", "0", StateTracking},
		{"SOMETHING_NEW", "0", StateTracking},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.status, tt.completion), func(t *testing.T) {
			got := Classify(broker.OrderStatus{
				Status:               tt.status,
				CompletionPercentage: decimal.RequireFromString(tt.completion),
			})
			if got != tt.want {
				t.Errorf("Classify(%q, %s) = %s, want %s", tt.status, tt.completion, got, tt.want)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	if StateTracking.Terminal() {
		t.Error("TRACKING must not be terminal")
	}
	for _, s := range []State{StateFilled, StateCancelled, StateExpired, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestRegister(t *testing.T) {
	tr, _, _, job := newTestTracker(t)

	if !tr.Register(tx("abc123")) {
		t.Fatal("expected order to be registered")
	}
	if tr.Size() != 1 {
		t.Errorf("Size() = %d, want 1", tr.Size())
	}
	if !job.isActive() {
		t.Error("check job should be active after register")
	}

	o, ok := tr.Get("abc123")
	if !ok {
		t.Fatal("expected tracked order")
	}
	if !o.CreatedAt.Equal(o.LastCheckedAt) {
		t.Errorf("CreatedAt %v != LastCheckedAt %v", o.CreatedAt, o.LastCheckedAt)
	}
	if o.Transaction.ID != "tx-abc123" {
		t.Errorf("Transaction.ID = %s", o.Transaction.ID)
	}
}

func TestRegisterWithoutOrderID(t *testing.T) {
	tr, _, _, job := newTestTracker(t)

	failed := tx("")
	failed.Status = ledger.StatusFailed
	if tr.Register(failed) {
		t.Error("a transaction without order id must not be tracked")
	}
	if tr.Size() != 0 || job.isActive() {
		t.Error("nothing should change for an empty order id")
	}
}

func TestRegisterActivatesOnce(t *testing.T) {
	tr, _, _, job := newTestTracker(t)

	tr.Register(tx("a"))
	tr.Register(tx("b"))
	tr.Register(tx("c"))
	if tr.Register(tx("a")) {
		t.Error("duplicate order id should be ignored")
	}

	if tr.Size() != 3 {
		t.Errorf("Size() = %d, want 3", tr.Size())
	}
	if job.activations != 1 {
		t.Errorf("check job activated %d times, want 1", job.activations)
	}
}

func TestPollAllFilled(t *testing.T) {
	tr, gw, n, job := newTestTracker(t)

	tr.Register(tx("abc123"))
	gw.set("abc123", "FILLED", "100")

	summary := tr.PollAll(context.Background())

	if summary.Checked != 1 || summary.Completed != 1 || summary.Remaining != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if tr.Size() != 0 {
		t.Errorf("Size() = %d, want 0", tr.Size())
	}
	events := n.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Kind != notify.KindOrderFilled {
		t.Errorf("event kind = %s, want %s", events[0].Kind, notify.KindOrderFilled)
	}
	if events[0].Fill == nil || !events[0].Fill.AverageFilledPrice.Equal(decimal.NewFromInt(49750)) {
		t.Errorf("fill details missing: %+v", events[0].Fill)
	}
	if events[0].Transaction.OrderID != "abc123" {
		t.Errorf("event order id = %s", events[0].Transaction.OrderID)
	}
	if job.isActive() {
		t.Error("check job should be inactive once the last order settles")
	}

	// a second pass finds nothing and emits nothing
	tr.PollAll(context.Background())
	if len(n.snapshot()) != 1 {
		t.Error("settled order must not be reported twice")
	}
}

func TestPollAllNonFilledTerminal(t *testing.T) {
	for _, status := range []string{"CANCELLED", "EXPIRED", "FAILED", "REJECTED"} {
		t.Run(status, func(t *testing.T) {
			tr, gw, n, _ := newTestTracker(t)
			tr.Register(tx("o1"))
			gw.set("o1", status, "0")

			tr.PollAll(context.Background())

			events := n.snapshot()
			if len(events) != 1 || events[0].Kind != notify.KindOrderClosed {
				t.Fatalf("expected one order_closed event, got %+v", events)
			}
			if events[0].Status != status {
				t.Errorf("event status = %s, want %s", events[0].Status, status)
			}
			if tr.Size() != 0 {
				t.Error("terminal order should be removed")
			}
		})
	}
}

func TestPollAllStillOpen(t *testing.T) {
	tr, gw, n, job := newTestTracker(t)
	tr.Register(tx("o1"))
	gw.set("o1", "OPEN", "40")

	before, _ := tr.Get("o1")
	time.Sleep(time.Millisecond)
	summary := tr.PollAll(context.Background())

	if summary.Completed != 0 || summary.Remaining != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	after, _ := tr.Get("o1")
	if !after.LastCheckedAt.After(before.LastCheckedAt) {
		t.Error("LastCheckedAt should advance")
	}
	if after.Checks != 1 || after.LastStatus != "OPEN" {
		t.Errorf("Checks=%d LastStatus=%q", after.Checks, after.LastStatus)
	}
	if len(n.snapshot()) != 0 {
		t.Error("open order must not emit events")
	}
	if !job.isActive() {
		t.Error("check job should stay active")
	}
}

func TestPollAllTransientError(t *testing.T) {
	tr, gw, n, job := newTestTracker(t)
	tr.Register(tx("flaky"))
	tr.Register(tx("good"))
	gw.fail("flaky", errors.ExchangeErrorf("connection reset"))
	gw.set("good", "FILLED", "100")

	summary := tr.PollAll(context.Background())

	if summary.Errors != 1 || summary.Completed != 1 || summary.Remaining != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if _, ok := tr.Get("flaky"); !ok {
		t.Fatal("failed query must leave the order tracked")
	}
	if len(n.snapshot()) != 1 {
		t.Errorf("only the good order should be reported, got %d events", len(n.snapshot()))
	}
	if !job.isActive() {
		t.Error("check job should stay active while an order is pending")
	}

	// next cycle retries the order
	gw.set("flaky", "FILLED", "100")
	tr.PollAll(context.Background())

	if gw.queryCount("flaky") != 2 {
		t.Errorf("flaky queried %d times, want 2", gw.queryCount("flaky"))
	}
	if tr.Size() != 0 || job.isActive() {
		t.Error("order should settle on retry and checking stop")
	}
	if len(n.snapshot()) != 2 {
		t.Errorf("expected 2 events, got %d", len(n.snapshot()))
	}
}

func TestPollAllNotifierFailure(t *testing.T) {
	tr, gw, n, _ := newTestTracker(t)
	n.err = errors.New("telegram down")
	tr.Register(tx("o1"))
	gw.set("o1", "FILLED", "100")

	summary := tr.PollAll(context.Background())

	if summary.Completed != 1 || tr.Size() != 0 {
		t.Error("notification failure must not affect tracking state")
	}
}

func TestPollAllEmptyDeactivates(t *testing.T) {
	tr, _, _, job := newTestTracker(t)
	job.ActivateOrderChecking()

	summary := tr.PollAll(context.Background())

	if summary.Checked != 0 || summary.Remaining != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if job.isActive() {
		t.Error("empty tracker should deactivate checking")
	}
}

func TestPollAllCancelledContext(t *testing.T) {
	tr, gw, _, _ := newTestTracker(t)
	tr.Register(tx("o1"))
	gw.set("o1", "FILLED", "100")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := tr.PollAll(ctx)

	if summary.Checked != 0 || tr.Size() != 1 {
		t.Errorf("cancelled poll should not query, got %+v", summary)
	}
}

func TestConcurrentPollsReportOnce(t *testing.T) {
	tr, gw, n, _ := newTestTracker(t)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("order-%02d", i)
		tr.Register(tx(id))
		gw.set(id, "FILLED", "100")
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.PollAll(context.Background())
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Size()
			_ = tr.Pending()
		}()
	}
	wg.Wait()

	if got := len(n.snapshot()); got != 20 {
		t.Errorf("expected exactly 20 events, got %d", got)
	}
	seen := make(map[string]bool)
	for _, e := range n.snapshot() {
		if seen[e.Transaction.OrderID] {
			t.Errorf("order %s reported twice", e.Transaction.OrderID)
		}
		seen[e.Transaction.OrderID] = true
	}
}

func TestPendingOrdering(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	step := 0
	tr.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	tr.Register(tx("second"))
	tr.Register(tx("third"))
	tr.now = func() time.Time { return base }
	tr.Register(tx("first"))

	pending := tr.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	want := []string{"first", "second", "third"}
	for i, o := range pending {
		if o.OrderID != want[i] {
			t.Errorf("pending[%d] = %s, want %s", i, o.OrderID, want[i])
		}
	}
}

func TestTrackerMetrics(t *testing.T) {
	tr, gw, _, _ := newTestTracker(t)
	c := metrics.NewCollector()
	tr.SetMetrics(c)

	tr.Register(tx("a"))
	tr.Register(tx("b"))
	gw.set("a", "FILLED", "100")
	gw.fail("b", errors.New("timeout"))

	tr.PollAll(context.Background())

	m := c.GetMetrics()
	if m.OrderPolls != 2 || m.PollErrors != 1 {
		t.Errorf("polls=%d errors=%d", m.OrderPolls, m.PollErrors)
	}
	if m.OrderOutcomes["FILLED"] != 1 {
		t.Errorf("OrderOutcomes = %v", m.OrderOutcomes)
	}
	if m.PendingOrders != 1 {
		t.Errorf("PendingOrders = %d, want 1", m.PendingOrders)
	}
}

// Package engine is the purchase routine and the query surface over the
// scheduler, tracker and ledger. One Service is built per process and
// handed to the API and CLI.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/broker"
	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
	"github.com/muaviaUsmani/autobuy/internal/logger"
	"github.com/muaviaUsmani/autobuy/internal/metrics"
	"github.com/muaviaUsmani/autobuy/internal/notify"
	"github.com/muaviaUsmani/autobuy/internal/scheduler"
	"github.com/muaviaUsmani/autobuy/internal/settings"
	"github.com/muaviaUsmani/autobuy/internal/tracker"
)

// Config wires a Service
type Config struct {
	Gateway  broker.Gateway
	Notifier notify.Notifier
	Ledger   *ledger.Ledger

	// Store persists accepted settings updates (optional)
	Store    settings.Store
	Settings settings.Settings

	Scheduler  scheduler.Options
	BrokerMode string

	Metrics *metrics.Collector
	Logger  logger.Logger
}

// Service owns the scheduler, tracker and ledger
type Service struct {
	gateway   broker.Gateway
	notifier  notify.Notifier
	ledger    *ledger.Ledger
	tracker   *tracker.Tracker
	scheduler *scheduler.Scheduler
	store     settings.Store

	settings atomic.Pointer[settings.Settings]
	updateMu sync.Mutex

	brokerMode string
	startedAt  atomic.Pointer[time.Time]
	metrics    *metrics.Collector
	log        logger.Logger
}

// New validates the initial settings and wires the components
func New(cfg Config) (*Service, error) {
	if cfg.Gateway == nil {
		return nil, errors.InvalidConfigurationf("broker gateway is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	log := logger.OrDefault(cfg.Logger)
	m := metrics.OrDefault(cfg.Metrics)

	l := cfg.Ledger
	if l == nil {
		l = ledger.New(log)
	}
	n := cfg.Notifier
	if n == nil {
		n = notify.NewLogNotifier(log)
	}

	s := &Service{
		gateway:    cfg.Gateway,
		notifier:   n,
		ledger:     l,
		store:      cfg.Store,
		brokerMode: cfg.BrokerMode,
		metrics:    m,
		log:        log.WithComponent(logger.ComponentEngine),
	}
	initial := cfg.Settings
	s.settings.Store(&initial)

	s.tracker = tracker.New(cfg.Gateway, n, log)
	s.tracker.SetMetrics(m)

	opts := cfg.Scheduler
	if opts.Logger == nil {
		opts.Logger = log
	}
	if opts.Metrics == nil {
		opts.Metrics = m
	}
	s.scheduler = scheduler.New(s.purchase, s.checkOrders, opts)
	s.tracker.SetCheckJob(s.scheduler)

	return s, nil
}

// Start schedules the buy job and announces the running configuration
func (s *Service) Start(ctx context.Context) error {
	current := s.Settings()
	if err := s.scheduler.Start(current.Recurrence()); err != nil {
		return err
	}
	started := time.Now().UTC()
	s.startedAt.Store(&started)

	event := notify.ProcessStarted(notify.StartupInfo{
		ProductID:  current.ProductID,
		Amount:     current.Amount,
		Schedule:   current.Describe(),
		BrokerMode: s.brokerMode,
	})
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.Warn("Failed to send startup notification", "error", err)
	}

	next, _ := s.NextBuyFireTime()
	s.log.Info("Autobuy started",
		"product_id", current.ProductID,
		"amount", current.Amount.String(),
		"schedule", current.Describe(),
		"next_buy", next.Format(time.RFC3339))
	return nil
}

// Stop halts scheduling and waits for in-flight runs until ctx expires
func (s *Service) Stop(ctx context.Context) error {
	s.scheduler.Stop()
	return s.scheduler.Wait(ctx)
}

// purchase is the buy routine shared by the schedule and manual triggers.
// Exchange failures become a Failed transaction; it never returns an error.
func (s *Service) purchase(ctx context.Context, amountOverride *decimal.Decimal, manual bool) ledger.Transaction {
	start := time.Now()
	current := s.Settings()

	attempt := ledger.Attempt{
		ProductID: current.ProductID,
		Amount:    current.Amount,
		Manual:    manual,
	}
	if amountOverride != nil {
		attempt.Amount = *amountOverride
	}

	price, err := s.gateway.GetPrice(ctx, attempt.ProductID)
	if err == nil {
		attempt.Price = decimal.NewNullDecimal(price)
		var placed broker.PlacedOrder
		placed, err = s.gateway.PlaceOrder(ctx, attempt.ProductID, attempt.Amount)
		if err == nil {
			attempt.OrderID = placed.OrderID
		}
	}
	attempt.Err = err

	tx := s.ledger.Record(attempt)
	s.metrics.RecordPurchase(tx.IsSuccess(), manual, time.Since(start))

	logCtx := ctx
	if tx.OrderID != "" {
		logCtx = logger.ContextWithOrderID(ctx, tx.OrderID)
	}
	if tx.IsSuccess() {
		s.log.InfoContext(logCtx, "Buy order placed",
			"product_id", tx.ProductID,
			"amount", tx.Amount.String(),
			"price", price.String(),
			"manual", manual)
	} else {
		s.log.ErrorContext(logCtx, "Buy attempt failed",
			"product_id", tx.ProductID,
			"amount", tx.Amount.String(),
			"manual", manual,
			"error", err)
	}

	s.tracker.Register(tx)

	if err := s.notifier.Notify(ctx, notify.OrderPlaced(tx)); err != nil {
		s.log.WarnContext(logCtx, "Failed to send order notification", "error", err)
	}
	return tx
}

func (s *Service) checkOrders(ctx context.Context) {
	summary := s.tracker.PollAll(ctx)
	s.log.Debug("Order check complete",
		"checked", summary.Checked,
		"completed", summary.Completed,
		"errors", summary.Errors,
		"remaining", summary.Remaining)
}

// CheckOrders polls every pending order now, outside the check job
func (s *Service) CheckOrders(ctx context.Context) tracker.PollSummary {
	return s.tracker.PollAll(ctx)
}

// TriggerManualBuy buys through the running scheduler. A nil override uses
// the configured amount.
func (s *Service) TriggerManualBuy(ctx context.Context, amountOverride *decimal.Decimal) (ledger.Transaction, error) {
	return s.scheduler.TriggerManually(ctx, amountOverride)
}

// BuyNow runs one purchase without a scheduler, for one-shot invocations
func (s *Service) BuyNow(ctx context.Context, amountOverride *decimal.Decimal) (ledger.Transaction, error) {
	if amountOverride != nil && !amountOverride.IsPositive() {
		return ledger.Transaction{}, errors.InvalidConfigurationf("amount must be positive, got %s", amountOverride.String())
	}
	return s.purchase(ctx, amountOverride, true), nil
}

// UpdateSettings applies u, reschedules the buy job and publishes the new
// snapshot. On error nothing changes. A failure to persist is logged only.
func (s *Service) UpdateSettings(ctx context.Context, u settings.Update) (settings.Settings, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	current := s.Settings()
	next, err := u.Apply(current)
	if err != nil {
		return current, err
	}

	if err := s.scheduler.Reschedule(next.Recurrence()); err != nil {
		return current, err
	}
	s.settings.Store(&next)

	if s.store != nil {
		if err := s.store.Save(ctx, next); err != nil {
			s.log.Error("Failed to persist settings", "error", err)
		}
	}

	nextBuy, _ := s.NextBuyFireTime()
	s.log.Info("Settings updated",
		"product_id", next.ProductID,
		"amount", next.Amount.String(),
		"schedule", next.Describe(),
		"next_buy", nextBuy.Format(time.RFC3339))
	return next, nil
}

// Settings returns the current snapshot
func (s *Service) Settings() settings.Settings {
	return *s.settings.Load()
}

// NextBuyFireTime returns when buy_job fires next
func (s *Service) NextBuyFireTime() (time.Time, bool) {
	return s.scheduler.NextFireTime(scheduler.BuyJobID)
}

// NextCheckFireTime returns when check_job fires next; false while no
// order is pending
func (s *Service) NextCheckFireTime() (time.Time, bool) {
	return s.scheduler.NextFireTime(scheduler.CheckJobID)
}

// TransactionHistory returns every attempt, oldest first
func (s *Service) TransactionHistory() []ledger.Transaction {
	return s.ledger.All()
}

// RecentTransactions returns up to n attempts, newest first
func (s *Service) RecentTransactions(n int) []ledger.Transaction {
	return s.ledger.Recent(n)
}

// PendingOrderCount returns how many orders are being tracked
func (s *Service) PendingOrderCount() int {
	return s.tracker.Size()
}

// PendingOrders returns the tracked orders, oldest first
func (s *Service) PendingOrders() []tracker.TrackedOrder {
	return s.tracker.Pending()
}

// Balances returns the exchange account balances
func (s *Service) Balances(ctx context.Context) ([]broker.Balance, error) {
	return s.gateway.Balances(ctx)
}

// JobState returns a job's run history
func (s *Service) JobState(ctx context.Context, jobID string) (*scheduler.ScheduleState, error) {
	return s.scheduler.GetState(ctx, jobID)
}

// Status is a point-in-time view for dashboards
type Status struct {
	Running       bool                `json:"running" yaml:"running"`
	BrokerMode    string              `json:"broker_mode,omitempty" yaml:"broker_mode,omitempty"`
	StartedAt     *time.Time          `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Settings      settings.View       `json:"settings" yaml:"settings"`
	NextBuy       *time.Time          `json:"next_buy,omitempty" yaml:"next_buy,omitempty"`
	NextCheck     *time.Time          `json:"next_check,omitempty" yaml:"next_check,omitempty"`
	PendingOrders int                 `json:"pending_orders" yaml:"pending_orders"`
	Transactions  int                 `json:"transactions" yaml:"transactions"`
	Jobs          []scheduler.JobInfo `json:"jobs" yaml:"jobs"`
	// History is the recorded run state of each registered job
	History []scheduler.ScheduleState `json:"history" yaml:"history"`
	Pending []tracker.TrackedOrder    `json:"pending" yaml:"-"`
}

// Status collects the current state. A state store error drops that job's
// history entry and is logged.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{
		Running:       s.scheduler.Running(),
		BrokerMode:    s.brokerMode,
		Settings:      s.Settings().View(),
		PendingOrders: s.tracker.Size(),
		Transactions:  s.ledger.Len(),
		Jobs:          s.scheduler.Jobs(),
		Pending:       s.tracker.Pending(),
	}
	if started := s.startedAt.Load(); started != nil {
		t := *started
		st.StartedAt = &t
	}
	if next, ok := s.NextBuyFireTime(); ok {
		st.NextBuy = &next
	}
	if next, ok := s.NextCheckFireTime(); ok {
		st.NextCheck = &next
	}
	for _, job := range st.Jobs {
		state, err := s.scheduler.GetState(ctx, job.ID)
		if err != nil {
			s.log.Warn("Failed to read job state", "job_id", job.ID, "error", err)
			continue
		}
		st.History = append(st.History, *state)
	}
	return st
}

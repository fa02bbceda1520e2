// Package scheduler runs the recurring buy job and the order check job.
//
// A single loop ticks every TickInterval, claims jobs whose next run has
// passed and dispatches each on its own goroutine. A job still running from
// its previous fire is skipped for the new slot. Triggers are evaluated in
// UTC.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/ledger"
	"github.com/muaviaUsmani/autobuy/internal/logger"
	"github.com/muaviaUsmani/autobuy/internal/metrics"
	"github.com/muaviaUsmani/autobuy/internal/recurrence"
)

// Purchaser executes one buy. A nil override means the configured amount.
// It never fails: problems come back as a failed transaction.
type Purchaser func(ctx context.Context, amountOverride *decimal.Decimal, manual bool) ledger.Transaction

// Checker polls pending orders once
type Checker func(ctx context.Context)

// Options tune a Scheduler. Zero values take defaults.
type Options struct {
	TickInterval  time.Duration
	CheckInterval time.Duration

	// StateStore records run history (memory when nil)
	StateStore StateStore

	// Locker guards exclusive jobs across processes (disabled when nil)
	Locker  Locker
	LockTTL time.Duration

	Metrics *metrics.Collector
	Logger  logger.Logger

	// Now overrides the clock in tests
	Now func() time.Time
}

// Scheduler owns buy_job and check_job
type Scheduler struct {
	registry *Registry
	purchase Purchaser
	check    Checker

	tickInterval  time.Duration
	checkInterval time.Duration
	state         StateStore
	locker        Locker
	lockTTL       time.Duration
	metrics       *metrics.Collector
	log           logger.Logger
	now           func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// in-flight job runs
	wg sync.WaitGroup
}

// New creates a stopped scheduler
func New(purchase Purchaser, check Checker, opts Options) *Scheduler {
	s := &Scheduler{
		registry:      NewRegistry(),
		purchase:      purchase,
		check:         check,
		tickInterval:  opts.TickInterval,
		checkInterval: opts.CheckInterval,
		state:         opts.StateStore,
		locker:        opts.Locker,
		lockTTL:       opts.LockTTL,
		metrics:       metrics.OrDefault(opts.Metrics),
		log:           logger.OrDefault(opts.Logger).WithComponent(logger.ComponentScheduler),
		now:           opts.Now,
	}
	if s.tickInterval <= 0 {
		s.tickInterval = DefaultTickInterval
	}
	if s.checkInterval <= 0 {
		s.checkInterval = DefaultCheckInterval
	}
	if s.state == nil {
		s.state = NewMemoryStateStore()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 2 * time.Minute
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Start registers buy_job for spec and starts the loop. Calling it again
// replaces the buy trigger; it never creates a second job or loop.
func (s *Scheduler) Start(spec recurrence.Spec) error {
	trigger, err := recurrence.ComputeTrigger(spec)
	if err != nil {
		return err
	}

	now := s.now()
	replaced, err := s.registry.Upsert(&Job{
		ID:          BuyJobID,
		Trigger:     trigger,
		Run:         s.runBuy,
		Exclusive:   true,
		Description: spec.Describe(),
	}, now)
	if err != nil {
		return err
	}
	next, _ := s.registry.NextRun(BuyJobID)
	s.persistNextRun(BuyJobID, next)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		s.running = true
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.loop(ctx, s.done)
	}

	s.log.Info("Scheduler started",
		"schedule", spec.Describe(),
		"trigger", trigger.String(),
		"next_run", next.Format(time.RFC3339),
		"replaced", replaced)
	return nil
}

// Reschedule swaps the buy trigger in place. On error the previous trigger
// stays active; check_job is never touched.
func (s *Scheduler) Reschedule(spec recurrence.Spec) error {
	if !s.Running() {
		return errors.Wrap(errors.ErrSchedulerNotRunning, "reschedule")
	}

	trigger, err := recurrence.ComputeTrigger(spec)
	if err != nil {
		return err
	}

	next, err := s.registry.SetTrigger(BuyJobID, trigger, s.now())
	if err != nil {
		return errors.Mark(err, errors.ErrSchedulerNotRunning)
	}
	s.persistNextRun(BuyJobID, next)

	s.log.Info("Buy job rescheduled",
		"schedule", spec.Describe(),
		"trigger", trigger.String(),
		"next_run", next.Format(time.RFC3339))
	return nil
}

// ActivateOrderChecking adds check_job unless it is already registered. It
// reports whether the job was added.
func (s *Scheduler) ActivateOrderChecking() bool {
	added, err := s.registry.AddIfAbsent(&Job{
		ID:          CheckJobID,
		Trigger:     recurrence.Every(s.checkInterval),
		Run:         s.runCheck,
		Description: "Check pending orders",
	}, s.now())
	if err != nil {
		s.log.Error("Failed to activate order checking", "error", err)
		return false
	}
	if added {
		next, _ := s.registry.NextRun(CheckJobID)
		s.log.Info("Order checking activated",
			"interval", s.checkInterval.String(),
			"next_run", next.Format(time.RFC3339))
	}
	return added
}

// DeactivateOrderChecking removes check_job. It reports whether the job
// was registered.
func (s *Scheduler) DeactivateOrderChecking() bool {
	removed := s.registry.Remove(CheckJobID)
	if removed {
		s.log.Info("Order checking deactivated")
	}
	return removed
}

// NextFireTime returns when a job fires next. It never waits on a run.
func (s *Scheduler) NextFireTime(jobID string) (time.Time, bool) {
	return s.registry.NextRun(jobID)
}

// TriggerManually buys now on the calling goroutine. The recurring schedule
// is not affected. Cancelling ctx does not abort an order already under way.
func (s *Scheduler) TriggerManually(ctx context.Context, amountOverride *decimal.Decimal) (ledger.Transaction, error) {
	if !s.Running() {
		return ledger.Transaction{}, errors.Wrap(errors.ErrSchedulerNotRunning, "manual trigger")
	}
	if amountOverride != nil && !amountOverride.IsPositive() {
		return ledger.Transaction{}, errors.InvalidConfigurationf("amount must be positive, got %s", amountOverride.String())
	}

	override := "configured"
	if amountOverride != nil {
		override = amountOverride.String()
	}
	s.log.Info("Manual buy triggered", "amount", override)
	return s.purchase(context.WithoutCancel(ctx), amountOverride, true), nil
}

// Jobs returns the registered jobs
func (s *Scheduler) Jobs() []JobInfo {
	return s.registry.List()
}

// GetState returns a job's run history with the live next run time
func (s *Scheduler) GetState(ctx context.Context, jobID string) (*ScheduleState, error) {
	state, err := s.state.GetState(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if next, ok := s.registry.NextRun(jobID); ok {
		state.NextRun = next
	}
	return state, nil
}

// Running reports whether the loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop ends the loop so nothing else fires. Runs already in flight keep
// going; use Wait to drain them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("Scheduler stopped")
}

// Wait blocks until in-flight runs finish or ctx is done
func (s *Scheduler) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches every due job
func (s *Scheduler) tick(ctx context.Context) {
	due, skipped := s.registry.claimDue(s.now())

	for _, id := range skipped {
		s.metrics.RecordJobSkipped(id)
		s.log.Warn("Previous run still in progress, skipping fire", "job_id", id)
	}

	for _, run := range due {
		s.wg.Add(1)
		go s.execute(ctx, run)
	}
}

// execute runs one claimed fire. Runs are detached from the loop context so
// Stop does not abort a purchase halfway.
func (s *Scheduler) execute(loopCtx context.Context, run dueRun) {
	defer s.wg.Done()
	defer s.registry.finish(run.job)

	ctx := logger.ContextWithJobID(context.WithoutCancel(loopCtx), run.id)

	if run.exclusive && s.locker != nil {
		claimed, err := s.locker.Claim(ctx, run.id, run.slot, s.lockTTL)
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to claim fire slot", "slot", run.slot.Format(time.RFC3339), "error", err)
			s.record(ctx, run, err)
			return
		}
		if !claimed {
			s.log.DebugContext(ctx, "Fire slot claimed by another instance", "slot", run.slot.Format(time.RFC3339))
			return
		}
	}

	err := s.invoke(ctx, run)
	s.record(ctx, run, err)
}

// invoke calls the job, turning a panic into an error
func (s *Scheduler) invoke(ctx context.Context, run dueRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewPanicError(r)
			s.log.ErrorContext(ctx, "Job panicked", "error", err)
		}
	}()
	return run.run(ctx)
}

func (s *Scheduler) record(ctx context.Context, run dueRun, err error) {
	s.metrics.RecordJobRun(run.id, err != nil)

	if err != nil {
		s.log.WarnContext(ctx, "Job run failed", "slot", run.slot.Format(time.RFC3339), "error", err)
	} else {
		s.log.DebugContext(ctx, "Job run complete",
			"slot", run.slot.Format(time.RFC3339),
			"next_run", run.nextRun.Format(time.RFC3339))
	}

	if stateErr := s.state.RecordRun(ctx, run.id, RunRecord{
		At:      s.now(),
		NextRun: run.nextRun,
		Err:     err,
	}); stateErr != nil {
		s.log.WarnContext(ctx, "Failed to update schedule state", "error", stateErr)
	}
}

func (s *Scheduler) persistNextRun(jobID string, next time.Time) {
	if err := s.state.SetNextRun(context.Background(), jobID, next); err != nil {
		s.log.Warn("Failed to update schedule state", "job_id", jobID, "error", err)
	}
}

// runBuy is buy_job's callback. A failed purchase is already recorded in
// the ledger; it is returned here only for run history.
func (s *Scheduler) runBuy(ctx context.Context) error {
	tx := s.purchase(ctx, nil, false)
	if !tx.IsSuccess() {
		return errors.Newf("purchase failed: %s", tx.Error)
	}
	return nil
}

func (s *Scheduler) runCheck(ctx context.Context) error {
	s.check(ctx)
	return nil
}

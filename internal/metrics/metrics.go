// Package metrics keeps in-process counters for purchases, order polling
// and scheduler jobs, and exposes them to Prometheus.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector instance
var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks system-wide metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	totalPurchases  atomic.Int64
	successfulBuys  atomic.Int64
	failedBuys      atomic.Int64
	manualPurchases atomic.Int64
	orderPolls      atomic.Int64
	pollErrors      atomic.Int64
	pendingOrders   atomic.Int64

	// Per-key tracking (protected by mutex)
	mu            sync.RWMutex
	orderOutcomes map[string]int64
	jobRuns       map[string]int64
	jobFailures   map[string]int64
	jobsSkipped   map[string]int64
	totalDuration time.Duration
	lastPurchase  time.Time
	startTime     time.Time
}

// Metrics represents a snapshot of current metrics
type Metrics struct {
	TotalPurchases      int64            `json:"total_purchases"`
	SuccessfulPurchases int64            `json:"successful_purchases"`
	FailedPurchases     int64            `json:"failed_purchases"`
	ManualPurchases     int64            `json:"manual_purchases"`
	AvgPurchaseDuration time.Duration    `json:"avg_purchase_duration"`
	PurchaseFailureRate float64          `json:"purchase_failure_rate"`
	LastPurchase        time.Time        `json:"last_purchase,omitempty"`
	OrderPolls          int64            `json:"order_polls"`
	PollErrors          int64            `json:"poll_errors"`
	PendingOrders       int64            `json:"pending_orders"`
	OrderOutcomes       map[string]int64 `json:"order_outcomes"`
	JobRuns             map[string]int64 `json:"job_runs"`
	JobFailures         map[string]int64 `json:"job_failures"`
	JobsSkipped         map[string]int64 `json:"jobs_skipped"`
	Uptime              time.Duration    `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// OrDefault returns c, or the global collector when c is nil
func OrDefault(c *Collector) *Collector {
	if c != nil {
		return c
	}
	return Default()
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		orderOutcomes: make(map[string]int64),
		jobRuns:       make(map[string]int64),
		jobFailures:   make(map[string]int64),
		jobsSkipped:   make(map[string]int64),
		startTime:     time.Now(),
	}
}

// RecordPurchase records one buy attempt
func (c *Collector) RecordPurchase(success, manual bool, duration time.Duration) {
	c.totalPurchases.Add(1)
	if success {
		c.successfulBuys.Add(1)
	} else {
		c.failedBuys.Add(1)
	}
	if manual {
		c.manualPurchases.Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDuration += duration
	c.lastPurchase = time.Now()
}

// RecordPoll records one order status query
func (c *Collector) RecordPoll(failed bool) {
	c.orderPolls.Add(1)
	if failed {
		c.pollErrors.Add(1)
	}
}

// RecordOrderOutcome counts a tracked order reaching a terminal state
func (c *Collector) RecordOrderOutcome(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orderOutcomes[state]++
}

// RecordPendingOrders sets the tracked order gauge
func (c *Collector) RecordPendingOrders(n int) {
	c.pendingOrders.Store(int64(n))
}

// RecordJobRun counts a scheduler job run
func (c *Collector) RecordJobRun(jobID string, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobRuns[jobID]++
	if failed {
		c.jobFailures[jobID]++
	}
}

// RecordJobSkipped counts a fire skipped because the previous run was still going
func (c *Collector) RecordJobSkipped(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsSkipped[jobID]++
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetMetrics returns a snapshot of current metrics
func (c *Collector) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.totalPurchases.Load()
	failed := c.failedBuys.Load()

	var avgDuration time.Duration
	var failureRate float64
	if total > 0 {
		avgDuration = c.totalDuration / time.Duration(total)
		failureRate = float64(failed) / float64(total) * 100
	}

	return Metrics{
		TotalPurchases:      total,
		SuccessfulPurchases: c.successfulBuys.Load(),
		FailedPurchases:     failed,
		ManualPurchases:     c.manualPurchases.Load(),
		AvgPurchaseDuration: avgDuration,
		PurchaseFailureRate: failureRate,
		LastPurchase:        c.lastPurchase,
		OrderPolls:          c.orderPolls.Load(),
		PollErrors:          c.pollErrors.Load(),
		PendingOrders:       c.pendingOrders.Load(),
		OrderOutcomes:       copyCounts(c.orderOutcomes),
		JobRuns:             copyCounts(c.jobRuns),
		JobFailures:         copyCounts(c.jobFailures),
		JobsSkipped:         copyCounts(c.jobsSkipped),
		Uptime:              time.Since(c.startTime),
	}
}

// Reset clears all metrics (useful for testing)
func (c *Collector) Reset() {
	c.totalPurchases.Store(0)
	c.successfulBuys.Store(0)
	c.failedBuys.Store(0)
	c.manualPurchases.Store(0)
	c.orderPolls.Store(0)
	c.pollErrors.Store(0)
	c.pendingOrders.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.orderOutcomes = make(map[string]int64)
	c.jobRuns = make(map[string]int64)
	c.jobFailures = make(map[string]int64)
	c.jobsSkipped = make(map[string]int64)
	c.totalDuration = 0
	c.lastPurchase = time.Time{}
	c.startTime = time.Now()
}

// GetMetrics returns metrics from the global collector
func GetMetrics() Metrics {
	return Default().GetMetrics()
}

// ResetMetrics resets the global collector
func ResetMetrics() {
	Default().Reset()
}

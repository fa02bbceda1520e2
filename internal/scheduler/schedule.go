package scheduler

import (
	"context"
	"time"

	"github.com/muaviaUsmani/autobuy/internal/recurrence"
)

const (
	// BuyJobID fires the recurring purchase
	BuyJobID = "buy_job"
	// CheckJobID polls pending orders while any exist
	CheckJobID = "check_job"

	// DefaultCheckInterval bounds how stale an order status can get
	DefaultCheckInterval = 5 * time.Minute
	// DefaultTickInterval is how often due jobs are looked for
	DefaultTickInterval = time.Second
)

// Job is a recurring callback
type Job struct {
	// ID is unique in the registry (alphanumeric, underscores, hyphens)
	ID string

	// Trigger computes fire times, always in UTC
	Trigger *recurrence.Trigger

	// Run is invoked once per fire on its own goroutine
	Run func(ctx context.Context) error

	// Exclusive jobs claim each fire slot through the Locker so only one
	// process runs it
	Exclusive bool

	// Description for logging/monitoring
	Description string

	nextRun time.Time
	running bool
}

// JobInfo is a read-only view of a registered job
type JobInfo struct {
	ID          string    `json:"id" yaml:"id"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Trigger     string    `json:"trigger" yaml:"trigger"`
	NextRun     time.Time `json:"next_run" yaml:"next_run"`
	Running     bool      `json:"running" yaml:"running"`
}

// ScheduleState represents the runtime state of a job
type ScheduleState struct {
	ID          string    `json:"id"`
	LastRun     time.Time `json:"last_run"`
	NextRun     time.Time `json:"next_run"`
	RunCount    int64     `json:"run_count"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
}

// RunRecord is what the scheduler reports after each run
type RunRecord struct {
	At      time.Time
	NextRun time.Time
	Err     error
}

package scheduler

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/recurrence"
)

var (
	// jobIDPattern validates job IDs (alphanumeric, underscores, hyphens)
	jobIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Registry holds at most one job per ID
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates a new job registry
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
	}
}

// dueRun is one claimed fire. It copies what the runner needs so a
// concurrent Upsert never races with the run.
type dueRun struct {
	job       *Job
	id        string
	slot      time.Time
	nextRun   time.Time
	exclusive bool
	run       func(ctx context.Context) error
}

// Upsert registers job, or swaps the trigger and callback of the job already
// registered under its ID. An in-flight run of the old definition is left
// alone. It reports whether an existing job was replaced.
func (r *Registry) Upsert(job *Job, now time.Time) (bool, error) {
	if err := validate(job); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[job.ID]; ok {
		existing.Trigger = job.Trigger
		existing.Run = job.Run
		existing.Exclusive = job.Exclusive
		existing.Description = job.Description
		existing.nextRun = existing.pendingOr(job.Trigger, now)
		return true, nil
	}

	job.nextRun = job.Trigger.Next(now)
	job.running = false
	r.jobs[job.ID] = job
	return false, nil
}

// AddIfAbsent registers job unless its ID is taken. It reports whether the
// job was added.
func (r *Registry) AddIfAbsent(job *Job, now time.Time) (bool, error) {
	if err := validate(job); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return false, nil
	}
	job.nextRun = job.Trigger.Next(now)
	job.running = false
	r.jobs[job.ID] = job
	return true, nil
}

// Remove deletes a job. It reports whether the job existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

// SetTrigger swaps the trigger of a registered job and recomputes its next run
func (r *Registry) SetTrigger(id string, trigger *recurrence.Trigger, now time.Time) (time.Time, error) {
	if trigger == nil {
		return time.Time{}, errors.InvalidConfigurationf("job %s: trigger cannot be nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return time.Time{}, errors.Newf("job %s is not registered", id)
	}
	job.Trigger = trigger
	job.nextRun = job.pendingOr(trigger, now)
	return job.nextRun, nil
}

// pendingOr keeps a slot that fell due but has not been claimed yet, so a
// trigger swap landing between the slot and the next tick does not drop it.
func (j *Job) pendingOr(trigger *recurrence.Trigger, now time.Time) time.Time {
	if !j.running && !j.nextRun.IsZero() && !j.nextRun.After(now) {
		return j.nextRun
	}
	return trigger.Next(now)
}

// NextRun returns the next fire time of a job
func (r *Registry) NextRun(id string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return time.Time{}, false
	}
	return job.nextRun, true
}

// Has reports whether a job is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[id]
	return ok
}

// claimDue returns the jobs whose next run is at or before now and advances
// their next run past now, so one slot is handed out once. Jobs still
// running their previous fire are returned in skipped instead.
func (r *Registry) claimDue(now time.Time) (due []dueRun, skipped []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range r.jobs {
		if job.nextRun.After(now) {
			continue
		}
		slot := job.nextRun
		job.nextRun = job.Trigger.Next(now)
		if job.running {
			skipped = append(skipped, job.ID)
			continue
		}
		job.running = true
		due = append(due, dueRun{
			job:       job,
			id:        job.ID,
			slot:      slot,
			nextRun:   job.nextRun,
			exclusive: job.Exclusive,
			run:       job.Run,
		})
	}

	sort.Slice(due, func(i, j int) bool { return due[i].id < due[j].id })
	sort.Strings(skipped)
	return due, skipped
}

// finish marks a claimed run as complete
func (r *Registry) finish(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.running = false
}

// List returns a snapshot of all jobs ordered by ID
func (r *Registry) List() []JobInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]JobInfo, 0, len(r.jobs))
	for _, job := range r.jobs {
		infos = append(infos, JobInfo{
			ID:          job.ID,
			Description: job.Description,
			Trigger:     job.Trigger.String(),
			NextRun:     job.nextRun,
			Running:     job.running,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Count returns the number of registered jobs
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func validate(job *Job) error {
	if job == nil {
		return errors.InvalidConfigurationf("job cannot be nil")
	}
	if job.ID == "" {
		return errors.InvalidConfigurationf("job ID cannot be empty")
	}
	if !jobIDPattern.MatchString(job.ID) {
		return errors.InvalidConfigurationf("job ID %q must contain only alphanumeric characters, underscores, and hyphens", job.ID)
	}
	if job.Trigger == nil {
		return errors.InvalidConfigurationf("job %s: trigger cannot be nil", job.ID)
	}
	if job.Run == nil {
		return errors.InvalidConfigurationf("job %s: run function cannot be nil", job.ID)
	}
	return nil
}

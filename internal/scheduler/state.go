package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

// StateStore keeps per-job run history
type StateStore interface {
	RecordRun(ctx context.Context, jobID string, rec RunRecord) error
	SetNextRun(ctx context.Context, jobID string, next time.Time) error
	GetState(ctx context.Context, jobID string) (*ScheduleState, error)
}

var (
	_ StateStore = (*MemoryStateStore)(nil)
	_ StateStore = (*RedisStateStore)(nil)
)

// MemoryStateStore keeps state for the lifetime of the process
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*ScheduleState
}

// NewMemoryStateStore creates an empty in-memory store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*ScheduleState)}
}

func (m *MemoryStateStore) entry(jobID string) *ScheduleState {
	s, ok := m.states[jobID]
	if !ok {
		s = &ScheduleState{ID: jobID}
		m.states[jobID] = s
	}
	return s
}

func (m *MemoryStateStore) RecordRun(ctx context.Context, jobID string, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.entry(jobID)
	s.LastRun = rec.At
	s.RunCount++
	if !rec.NextRun.IsZero() {
		s.NextRun = rec.NextRun
	}
	if rec.Err != nil {
		s.LastError = rec.Err.Error()
	} else {
		s.LastError = ""
		s.LastSuccess = rec.At
	}
	return nil
}

func (m *MemoryStateStore) SetNextRun(ctx context.Context, jobID string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(jobID).NextRun = next
	return nil
}

func (m *MemoryStateStore) GetState(ctx context.Context, jobID string) (*ScheduleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[jobID]
	if !ok {
		return &ScheduleState{ID: jobID}, nil
	}
	cp := *s
	return &cp, nil
}

// RedisStateStore keeps state in a hash per job so it survives restarts
// and can be read by other instances
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore creates a store on client
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func stateKey(jobID string) string {
	return fmt.Sprintf("autobuy:schedules:%s", jobID)
}

// RecordRun writes the run fields and bumps run_count in one transaction
func (r *RedisStateStore) RecordRun(ctx context.Context, jobID string, rec RunRecord) error {
	key := stateKey(jobID)

	fields := map[string]interface{}{
		"last_run": rec.At.UTC().Format(time.RFC3339),
	}
	if !rec.NextRun.IsZero() {
		fields["next_run"] = rec.NextRun.UTC().Format(time.RFC3339)
	}
	if rec.Err == nil {
		fields["last_success"] = rec.At.UTC().Format(time.RFC3339)
	} else {
		fields["last_error"] = rec.Err.Error()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if rec.Err == nil {
			// Clear error field on success
			pipe.HDel(ctx, key, "last_error")
		}
		pipe.HIncrBy(ctx, key, "run_count", 1)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "record run for %s", jobID)
	}
	return nil
}

func (r *RedisStateStore) SetNextRun(ctx context.Context, jobID string, next time.Time) error {
	if err := r.client.HSet(ctx, stateKey(jobID), "next_run", next.UTC().Format(time.RFC3339)).Err(); err != nil {
		return errors.Wrapf(err, "set next run for %s", jobID)
	}
	return nil
}

// GetState reads a job's hash. A job that never ran has a zero state.
func (r *RedisStateStore) GetState(ctx context.Context, jobID string) (*ScheduleState, error) {
	result, err := r.client.HGetAll(ctx, stateKey(jobID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get schedule state")
	}

	state := &ScheduleState{ID: jobID}
	state.LastRun = parseStateTime(result["last_run"])
	state.NextRun = parseStateTime(result["next_run"])
	state.LastSuccess = parseStateTime(result["last_success"])
	state.LastError = result["last_error"]
	if runCount := result["run_count"]; runCount != "" {
		if n, err := strconv.ParseInt(runCount, 10, 64); err == nil {
			state.RunCount = n
		}
	}
	return state, nil
}

func parseStateTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

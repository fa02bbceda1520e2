package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

// Locker hands each fire slot of an exclusive job to one process
type Locker interface {
	// Claim reports whether this process owns the slot. A slot claimed
	// elsewhere returns false with no error.
	Claim(ctx context.Context, jobID string, slot time.Time, ttl time.Duration) (bool, error)
}

var _ Locker = (*RedisLocker)(nil)

// RedisLocker claims slots with SET NX. Claims are never released: they
// expire with their TTL, so an instance that ticks late still sees the slot
// as taken after the winner has finished.
type RedisLocker struct {
	client     *redis.Client
	instanceID string
}

// NewRedisLocker creates a locker identified by a random instance token
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, instanceID: uuid.New().String()}
}

// InstanceID is the value written into claimed slots
func (l *RedisLocker) InstanceID() string {
	return l.instanceID
}

func slotKey(jobID string, slot time.Time) string {
	return fmt.Sprintf("autobuy:schedule_lock:%s:%d", jobID, slot.UTC().Unix())
}

func (l *RedisLocker) Claim(ctx context.Context, jobID string, slot time.Time, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, slotKey(jobID, slot), l.instanceID, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claim %s slot %s", jobID, slot.UTC().Format(time.RFC3339))
	}
	return acquired, nil
}

// Owner returns the instance that claimed a slot, or "" if unclaimed
func (l *RedisLocker) Owner(ctx context.Context, jobID string, slot time.Time) (string, error) {
	owner, err := l.client.Get(ctx, slotKey(jobID, slot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "read slot owner")
	}
	return owner, nil
}

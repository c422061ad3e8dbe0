// Package lock provides Redis-backed per-learner leases used to serialize
// verification cascades.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lease is already held.
var ErrNotAcquired = fmt.Errorf("learner lock already held")

// LearnerLock serializes cascade runs per learner via a SET NX lease.
type LearnerLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLearnerLock creates a new lock manager. The TTL bounds how long a
// crashed holder can block other writers.
func NewLearnerLock(client *redis.Client, ttl time.Duration) *LearnerLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LearnerLock{client: client, ttl: ttl}
}

func (l *LearnerLock) key(learnerID uint) string {
	return fmt.Sprintf("craftlink:cascade:learner:%d", learnerID)
}

// Acquire takes the lease for a learner. Returns ErrNotAcquired when another
// cascade holds it.
func (l *LearnerLock) Acquire(ctx context.Context, learnerID uint) error {
	ok, err := l.client.SetNX(ctx, l.key(learnerID), "1", l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire learner lock %d: %w", learnerID, err)
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// AcquireWait retries Acquire until the lease is free or the context expires.
func (l *LearnerLock) AcquireWait(ctx context.Context, learnerID uint) error {
	for {
		err := l.Acquire(ctx, learnerID)
		if err == nil {
			return nil
		}
		if err != ErrNotAcquired {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Release frees the lease.
func (l *LearnerLock) Release(ctx context.Context, learnerID uint) error {
	if err := l.client.Del(ctx, l.key(learnerID)).Err(); err != nil {
		return fmt.Errorf("failed to release learner lock %d: %w", learnerID, err)
	}
	return nil
}

package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Housekeeper is the slice of the queue the janitor drives.
type Housekeeper interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Janitor periodically deletes aged terminal entries (retention) and
// returns entries stuck in processing to pending (the liveness sweep
// covering crashes between claim and completion). A best-effort redis
// lock keeps one instance active per interval; correctness does not
// depend on the lock, both operations are idempotent.
type Janitor struct {
	Queue Housekeeper
	Redis *redis.Client // nil disables locking (single-instance dev)

	Interval     time.Duration
	LockTTL      time.Duration
	Retention    time.Duration
	ReclaimAfter time.Duration

	InstanceID string
	Log        *zap.Logger
}

const janitorLockKey = "whrelay:janitor:lock"

// Run blocks until ctx is cancelled, sweeping once per interval.
func (j *Janitor) Run(ctx context.Context) error {
	if j.Interval <= 0 {
		j.Interval = 5 * time.Minute
	}
	if j.LockTTL <= 0 {
		j.LockTTL = j.Interval - j.Interval/10
	}

	j.Log.Info("janitor started",
		zap.Duration("interval", j.Interval),
		zap.Duration("retention", j.Retention),
		zap.Duration("reclaim_after", j.ReclaimAfter),
	)

	tick := time.NewTicker(j.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			j.Log.Info("janitor stopped", zap.Error(ctx.Err()))
			return nil
		case <-tick.C:
			if !j.acquireLock(ctx) {
				continue
			}
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	if j.ReclaimAfter > 0 {
		n, err := j.Queue.ReclaimStale(ctx, j.ReclaimAfter)
		if err != nil {
			j.Log.Error("stale reclaim failed", zap.Error(err))
		} else if n > 0 {
			j.Log.Warn("reclaimed stale processing entries", zap.Int64("entries", n))
		}
	}

	if j.Retention > 0 {
		cutoff := time.Now().Add(-j.Retention)
		n, err := j.Queue.DeleteTerminalBefore(ctx, cutoff)
		if err != nil {
			j.Log.Error("retention delete failed", zap.Error(err))
		} else if n > 0 {
			j.Log.Info("retention removed terminal entries", zap.Int64("entries", n))
		}
	}
}

func (j *Janitor) acquireLock(ctx context.Context) bool {
	if j.Redis == nil {
		return true
	}
	ok, err := j.Redis.SetNX(ctx, janitorLockKey, j.InstanceID, j.LockTTL).Result()
	if err != nil {
		// redis down: sweep anyway, the operations tolerate overlap
		j.Log.Warn("janitor lock unavailable", zap.Error(err))
		return true
	}
	return ok
}

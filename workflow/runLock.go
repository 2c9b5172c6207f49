package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/wavehaus/bookings_backend/utils"
)

// All reconciliation runs contend on one lease. Date ranges overlap in the
// common 30-day-default case anyway, so a range-keyed lease would rarely
// admit a second run while still letting two auto-corrections race.
const reconcileLeaseKey = "reconcile:payments"

// RunLocker hands out the exclusive reconciliation lease. A held lease
// means another run is in flight: fail fast with a ConflictError, never
// queue.
type RunLocker interface {
	AcquireRunLease(ctx context.Context, ttl time.Duration) (RunLease, error)
}

type RunLease interface {
	Release(ctx context.Context) error
}

// redisRunLocker implements RunLocker on redislock.
type redisRunLocker struct {
	locker *redislock.Client
}

func NewRedisRunLocker(locker *redislock.Client) RunLocker {
	return &redisRunLocker{locker: locker}
}

func (r *redisRunLocker) AcquireRunLease(ctx context.Context, ttl time.Duration) (RunLease, error) {
	if r.locker == nil {
		// Without the lease service there is no way to exclude a concurrent
		// auto-correcting run, so refuse rather than risk double writes.
		return nil, &utils.ConflictError{Message: "reconciliation lease service unavailable; try again later"}
	}

	lock, err := r.locker.Obtain(ctx, reconcileLeaseKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, &utils.ConflictError{Message: "another reconciliation run is in progress"}
	}
	if err != nil {
		return nil, err
	}
	return &redisRunLease{lock: lock}, nil
}

type redisRunLease struct {
	lock *redislock.Lock
}

func (l *redisRunLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if err == redislock.ErrLockNotHeld {
		return nil
	}
	return err
}

// Package lock provides the named exclusive lock that serializes sweeps and
// other writers of the shared log table.
package lock

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultTimeout bounds how long a sweep waits for the lock.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when the lock could not be acquired within the
// requested bound.
var ErrTimeout = eris.New("lock: timed out waiting for lock")

// ErrLost is returned when a guard no longer owns its lock, for example
// because a lease expired and another holder took it over.
var ErrLost = eris.New("lock: lock lost")

// Guard is a held lock. Release is idempotent.
type Guard interface {
	// Held returns nil while the lock is still owned, and an error matching
	// ErrLost once it is not. Writers call it before committing.
	Held(ctx context.Context) error
	Release() error
}

// Locker acquires named exclusive locks.
type Locker interface {
	Acquire(ctx context.Context, name string, timeout time.Duration) (Guard, error)
}

// wait blocks for d or until deadline or ctx ends. It reports whether the
// caller should try again.
func wait(ctx context.Context, d time.Duration, deadline time.Time) (bool, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false, nil
	}
	if d > remaining {
		d = remaining
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return time.Now().Before(deadline), nil
	}
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockBusy is returned by Lock when another process held the lock for the
// whole wait.
var ErrLockBusy = errors.New("cache is locked by another process")

const lockRetryDelay = 100 * time.Millisecond

// Unlocker releases a cache lock.
type Unlocker interface {
	Unlock() error
}

type noopUnlocker struct{}

func (noopUnlocker) Unlock() error { return nil }

// Lock takes an exclusive advisory lock on <path>.lock, waiting until ctx is
// done. A wait that runs out its deadline yields ErrLockBusy; a cancelled ctx
// yields context.Canceled. On failure it returns a no-op Unlocker together
// with the error, so callers can log and continue unlocked.
func Lock(ctx context.Context, path string) (Unlocker, error) {
	if err := ensureDir(path); err != nil {
		return noopUnlocker{}, fmt.Errorf("creating lock dir: %w", err)
	}

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return noopUnlocker{}, ErrLockBusy
		}
		if errors.Is(err, context.Canceled) {
			return noopUnlocker{}, err
		}
		return noopUnlocker{}, fmt.Errorf("locking cache: %w", err)
	}
	if !locked {
		return noopUnlocker{}, ErrLockBusy
	}
	return fl, nil
}

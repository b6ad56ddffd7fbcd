// Package lock provides keyed leases used to serialise writers of a timeframe bucket.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const DefaultRetryInterval = 100 * time.Millisecond

var ErrNotHeld = errors.New("lock not held")

type Locker interface {
	// Acquire blocks until key is free, ttl elapses on the current holder, or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

type Lease struct {
	Key     string
	Token   string
	release func(ctx context.Context, key, token string) error
}

// Release frees the lease. Releasing a lease that already expired and was
// taken by someone else returns ErrNotHeld and leaves the new holder alone.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	return l.release(ctx, l.Key, l.Token)
}

func newToken() string {
	return uuid.NewString()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

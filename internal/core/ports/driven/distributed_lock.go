package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates periodic refreshes across instances sharing a
// backend, so a list is refreshed by one instance per interval.
type DistributedLock interface {
	// Acquire takes a named lock for ttl. It returns false when another
	// instance holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release frees a named lock held by this instance. Safe to call when
	// the lock has expired or is held elsewhere.
	Release(ctx context.Context, name string) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}

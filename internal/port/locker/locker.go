package locker

import "context"

// AdvisoryLocker serialises critical sections across processes.
// WithLock holds key for the duration of fn. A second holder of the same key blocks until fn
// returns or its own ctx is done.
type AdvisoryLocker interface {
	WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error
}

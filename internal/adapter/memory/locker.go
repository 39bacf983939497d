package memory

import (
	"context"
	"sync"

	portlocker "github.com/alanyang/job-dispatch/internal/port/locker"
)

var _ portlocker.AdvisoryLocker = (*Locker)(nil)

// Locker is a process-local stand-in for Postgres advisory locks: one mutex per key.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[int64]chan struct{})}
}

func (l *Locker) WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()

	return fn(ctx)
}

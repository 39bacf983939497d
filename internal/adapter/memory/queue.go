package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	portqueue "github.com/alanyang/job-dispatch/internal/port/queue"
)

var _ portqueue.Queue = (*Queue)(nil)

// Queue is a FIFO of job ids. An id already waiting is not queued twice.
type Queue struct {
	mu      sync.Mutex
	items   []uuid.UUID
	pending map[uuid.UUID]struct{}
	ready   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		pending: make(map[uuid.UUID]struct{}),
		ready:   make(chan struct{}, 1),
	}
}

func (q *Queue) Enqueue(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	if _, ok := q.pending[jobID]; !ok {
		q.pending[jobID] = struct{}{}
		q.items = append(q.items, jobID)
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) Claim(_ context.Context, max int) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if max > 0 && n > max {
		n = max
	}
	out := make([]uuid.UUID, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	for _, id := range out {
		delete(q.pending, id)
	}
	return out, nil
}

func (q *Queue) Ready() <-chan struct{} { return q.ready }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

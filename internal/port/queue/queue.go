package queue

import (
	"context"

	"github.com/google/uuid"
)

// Queue hands job ids from intake to the distribution worker.
type Queue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
	// Claim removes and returns up to max ids without blocking. An empty slice means nothing is queued.
	Claim(ctx context.Context, max int) ([]uuid.UUID, error)
	// Ready is signalled after every Enqueue so consumers can wake early.
	Ready() <-chan struct{}
	Len() int
}

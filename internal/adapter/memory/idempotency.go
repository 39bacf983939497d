package memory

import (
	"context"
	"sync"

	portidem "github.com/alanyang/job-dispatch/internal/port/idempotency"
)

var _ portidem.Store = (*Idempotency)(nil)

type Idempotency struct {
	mu      sync.RWMutex
	results map[string][]byte
}

func NewIdempotency() *Idempotency {
	return &Idempotency{results: make(map[string][]byte)}
}

func (s *Idempotency) Check(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[key]
	return r, ok, nil
}

func (s *Idempotency) Save(_ context.Context, key, _ string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[key]; !ok {
		s.results[key] = result
	}
	return nil
}

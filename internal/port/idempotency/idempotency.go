package idempotency

import "context"

// Store remembers the result of an operation under a client-supplied key so a retried
// request returns the original result instead of repeating the operation.
type Store interface {
	// Check returns the stored result and whether the key has been seen.
	Check(ctx context.Context, key string) ([]byte, bool, error)
	// Save records result under key. An existing key keeps its first result.
	Save(ctx context.Context, key, operation string, result []byte) error
}

// Package apperr defines the error categories shared by every layer.
// Adapters and services wrap these with fmt.Errorf("...: %w", err) so callers
// can classify failures with errors.Is without depending on a concrete store.
package apperr

import "errors"

var (
	// ErrNotFound means a job, agent, distribution or assignment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation means structurally incomplete or malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means a uniqueness invariant or a compare-and-set guard rejected the write.
	ErrConflict = errors.New("conflict")

	// ErrRemoteCall means a call to an agent endpoint failed after its retry policy was exhausted.
	ErrRemoteCall = errors.New("remote call failed")

	// ErrPersistence means the data store failed.
	ErrPersistence = errors.New("persistence failure")
)

// Kind returns the category name used by the control surface.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "bad_request"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

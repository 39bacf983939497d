package distribution

import (
	"context"
	"time"

	"github.com/google/uuid"

	domaindist "github.com/alanyang/job-dispatch/internal/domain/distribution"
)

// Repository owns distribution records and their assignments.
type Repository interface {
	// Open atomically writes the record, bulk-creates the assignments and moves the job
	// open → distributed. Nothing is written if any step fails. A missing job returns
	// apperr.ErrNotFound; a job that already has a distribution returns apperr.ErrConflict.
	Open(ctx context.Context, rec domaindist.Record, assignments []domaindist.Assignment) (domaindist.Record, error)

	GetByID(ctx context.Context, id uuid.UUID) (domaindist.Record, error)
	GetByJobID(ctx context.Context, jobID uuid.UUID) (domaindist.Record, error)

	// ListAssignments returns the legs of one distribution ordered by assigned_at, then insertion order.
	ListAssignments(ctx context.Context, distributionID uuid.UUID) ([]domaindist.Assignment, error)
	GetAssignment(ctx context.Context, key domaindist.Key) (domaindist.Assignment, error)

	// UpdateAssignment applies patch only if the current status is one of from (CAS).
	// A failed guard returns apperr.ErrConflict.
	UpdateAssignment(ctx context.Context, key domaindist.Key, from []domaindist.WorkStatus, patch domaindist.Patch) (domaindist.Assignment, error)

	// RefreshResponseCount recomputes and persists the monotonic response count.
	RefreshResponseCount(ctx context.Context, distributionID uuid.UUID) (int, error)

	// Resolve atomically records the winner, completes the job and cancels every other open leg.
	// It returns the legs it cancelled. A distribution that already has a winner returns
	// apperr.ErrConflict and writes nothing.
	Resolve(ctx context.Context, res domaindist.Resolution) ([]domaindist.Assignment, error)

	// ListExpired returns distributions whose deadline is before now and whose job is unresolved.
	ListExpired(ctx context.Context, now time.Time) ([]domaindist.Record, error)

	CountAssignmentsByStatus(ctx context.Context) (map[domaindist.WorkStatus]int, error)
}

// PerformanceRepository maintains the per-agent aggregate.
type PerformanceRepository interface {
	// RecordOutcome atomically upserts the aggregate for one terminal outcome.
	RecordOutcome(ctx context.Context, agentID uuid.UUID, success bool, executionTimeMs int64) (domaindist.Performance, error)
	GetPerformance(ctx context.Context, agentID uuid.UUID) (domaindist.Performance, error)
	TopPerformers(ctx context.Context, limit int) ([]domaindist.Performance, error)
}

// LogRepository is the append-only execution audit log.
type LogRepository interface {
	AppendLog(ctx context.Context, e domaindist.LogEntry) error
	ListLogs(ctx context.Context, jobID uuid.UUID) ([]domaindist.LogEntry, error)
}

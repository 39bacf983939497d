package job

import (
	"context"

	"github.com/google/uuid"

	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
)

type Repository interface {
	Create(ctx context.Context, j domainjob.Job) (domainjob.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (domainjob.Job, error)
	List(ctx context.Context, filters domainjob.ListFilters) ([]domainjob.Job, error)

	// UpdateStatus performs an atomic CAS: only transitions if the current status is one of from.
	// A failed guard returns apperr.ErrConflict; a missing job returns apperr.ErrNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, to domainjob.Status, from ...domainjob.Status) error

	CountByStatus(ctx context.Context) (map[domainjob.Status]int, error)
}

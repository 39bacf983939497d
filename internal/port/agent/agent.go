package agent

import (
	"context"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/job-dispatch/internal/domain/agent"
)

// Repository manages agent reference data.
type Repository interface {
	Create(ctx context.Context, a domainagent.Agent) (domainagent.Agent, error)
	GetByID(ctx context.Context, id uuid.UUID) (domainagent.Agent, error)
	List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error)

	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// UpdateStats mirrors the performance aggregate onto the agent record.
	UpdateStats(ctx context.Context, id uuid.UUID, totalCompleted int, successRate float64) error
}

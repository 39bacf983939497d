package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/job-dispatch/internal/domain/agent"
)

// CandidateReader is the narrow interface the orchestrator needs to build a scoring pool.
// [ISP] The orchestrator depends only on this one method, not the full Repository.
type CandidateReader interface {
	// ListCandidates returns active, auto-accepting agents with their open assignment count and the
	// number of assignments created at or after since.
	ListCandidates(ctx context.Context, since time.Time) ([]domainagent.Candidate, error)
}

// StatsWriter mirrors performance aggregates onto the agent record.
type StatsWriter interface {
	UpdateStats(ctx context.Context, id uuid.UUID, totalCompleted int, successRate float64) error
}

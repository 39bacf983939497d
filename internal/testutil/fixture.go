package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyang/job-dispatch/internal/adapter/memory"
	"github.com/alanyang/job-dispatch/internal/domain/agent"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
)

// Fixture seeds an in-memory store for service tests.
type Fixture struct {
	Store *memory.Store
	Bus   *memory.EventBus
	n     int
}

func NewFixture() *Fixture {
	return &Fixture{Store: memory.NewStore(), Bus: memory.NewEventBus()}
}

// Job persists an Open job requiring tags at level.
func (f *Fixture) Job(t *testing.T, tags []string, level skill.Level) job.Job {
	t.Helper()
	j, err := f.Store.Jobs().Create(context.Background(), job.New("job", "do the thing", "dev", tags, level, nil, nil))
	require.NoError(t, err)
	return j
}

// Agents persists n active auto-accepting agents with unique addresses.
func (f *Fixture) Agents(t *testing.T, n int, tags []string, level skill.Level) []agent.Agent {
	t.Helper()
	out := make([]agent.Agent, 0, n)
	for i := 0; i < n; i++ {
		f.n++
		name := fmt.Sprintf("agent-%d", f.n)
		a, err := f.Store.Agents().Create(context.Background(), agent.New(name, "http://"+name, tags, level))
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

// Open opens a distribution of j over agents, in order.
func (f *Fixture) Open(t *testing.T, j job.Job, agents []agent.Agent) distribution.Record {
	t.Helper()
	rec := distribution.New(j, len(agents), time.Minute)
	legs := make([]distribution.Assignment, len(agents))
	for i, a := range agents {
		legs[i] = distribution.NewAssignment(rec.ID, a.ID, a.Name, a.Address, rec.CreatedAt)
	}
	got, err := f.Store.Distributions().Open(context.Background(), rec, legs)
	require.NoError(t, err)
	return got
}

func Key(rec distribution.Record, a agent.Agent) distribution.Key {
	return distribution.Key{DistributionID: rec.ID, AgentID: a.ID}
}

//go:build integration

package agent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgagent "github.com/alanyang/job-dispatch/internal/adapter/postgres/agent"
	pgdist "github.com/alanyang/job-dispatch/internal/adapter/postgres/distribution"
	pgjob "github.com/alanyang/job-dispatch/internal/adapter/postgres/job"
	"github.com/alanyang/job-dispatch/internal/apperr"
	domainagent "github.com/alanyang/job-dispatch/internal/domain/agent"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
	"github.com/alanyang/job-dispatch/internal/testutil"
)

func setupAgent(t *testing.T, ctx context.Context, repo *pgagent.Repository) domainagent.Agent {
	t.Helper()
	name := "bot-" + uuid.NewString()[:8]
	a := domainagent.New(name, "http://"+name+":9000", []string{"NLP"}, skill.Expert)
	a.Reputation = 4.2
	created, err := repo.Create(ctx, a)
	require.NoError(t, err)
	return created
}

func candidateFor(t *testing.T, cands []domainagent.Candidate, id uuid.UUID) (domainagent.Candidate, bool) {
	t.Helper()
	for _, c := range cands {
		if c.Agent.ID == id {
			return c, true
		}
	}
	return domainagent.Candidate{}, false
}

func TestAgentRepo_CreateGetList(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := pgagent.New(pool)

	a := setupAgent(t, ctx, repo)
	assert.Equal(t, []string{"nlp"}, a.Tags)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, skill.Expert, got.Skill)
	assert.Equal(t, 4.2, got.Reputation)
	assert.True(t, got.IsActive)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	active := true
	list, err := repo.List(ctx, domainagent.ListFilters{IsActive: &active})
	require.NoError(t, err)
	found := false
	for _, l := range list {
		found = found || l.ID == a.ID
	}
	assert.True(t, found)
}

func TestAgentRepo_SetActiveAndStats(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := pgagent.New(pool)
	a := setupAgent(t, ctx, repo)

	require.NoError(t, repo.SetActive(ctx, a.ID, false))
	require.NoError(t, repo.UpdateStats(ctx, a.ID, 7, 0.875))

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 7, got.TotalJobsCompleted)
	assert.Equal(t, 0.875, got.SuccessRate)

	assert.True(t, errors.Is(repo.SetActive(ctx, uuid.New(), true), apperr.ErrNotFound))
	assert.True(t, errors.Is(repo.UpdateStats(ctx, uuid.New(), 1, 1), apperr.ErrNotFound))

	cands, err := repo.ListCandidates(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, ok := candidateFor(t, cands, a.ID)
	assert.False(t, ok, "inactive agents are not candidates")
}

func TestAgentRepo_ListCandidatesCounts(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := pgagent.New(pool)
	jobs := pgjob.New(pool)
	dists := pgdist.New(pool)

	busy := setupAgent(t, ctx, repo)
	idle := setupAgent(t, ctx, repo)

	j, err := jobs.Create(ctx, domainjob.New("count", "", "dev", nil, skill.Beginner, nil, nil))
	require.NoError(t, err)
	rec := distribution.New(j, 1, time.Minute)
	_, err = dists.Open(ctx, rec, []distribution.Assignment{
		distribution.NewAssignment(rec.ID, busy.ID, busy.Name, busy.Address, rec.CreatedAt),
	})
	require.NoError(t, err)

	cands, err := repo.ListCandidates(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	c, ok := candidateFor(t, cands, busy.ID)
	require.True(t, ok)
	assert.Equal(t, 1, c.ActiveAssignments)
	assert.Equal(t, 1, c.RecentAssignments)

	c, ok = candidateFor(t, cands, idle.ID)
	require.True(t, ok)
	assert.Zero(t, c.ActiveAssignments)
	assert.Zero(t, c.RecentAssignments)

	later, err := repo.ListCandidates(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	c, ok = candidateFor(t, later, busy.ID)
	require.True(t, ok)
	assert.Equal(t, 1, c.ActiveAssignments)
	assert.Zero(t, c.RecentAssignments)
}

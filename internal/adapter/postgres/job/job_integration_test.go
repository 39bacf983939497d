//go:build integration

package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgjob "github.com/alanyang/job-dispatch/internal/adapter/postgres/job"
	"github.com/alanyang/job-dispatch/internal/apperr"
	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
	"github.com/alanyang/job-dispatch/internal/testutil"
)

func newJob(title string) domainjob.Job {
	budget := 40.0
	deadline := time.Now().Add(time.Hour).UTC()
	return domainjob.New(title, "desc", "translation", []string{"German", "docs"}, skill.Intermediate, &budget, &deadline)
}

func TestJobRepo_CreateGet(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := pgjob.New(pool)

	j := newJob("create-" + uuid.NewString()[:8])
	created, err := repo.Create(ctx, j)
	require.NoError(t, err)
	assert.Equal(t, j.ID, created.ID)
	assert.Equal(t, []string{"german", "docs"}, created.Tags)
	assert.Equal(t, skill.Intermediate, created.SkillLevel)
	require.NotNil(t, created.MaxBudget)
	assert.Equal(t, 40.0, *created.MaxBudget)
	require.NotNil(t, created.Deadline)
	assert.WithinDuration(t, *j.Deadline, *created.Deadline, time.Millisecond)

	got, err := repo.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domainjob.StatusOpen, got.Status)

	_, err = repo.Create(ctx, j)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = repo.GetByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestJobRepo_NoBudgetNoDeadline(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := pgjob.New(pool)

	j := domainjob.New("bare", "", "dev", nil, skill.Beginner, nil, nil)
	created, err := repo.Create(ctx, j)
	require.NoError(t, err)
	assert.Nil(t, created.MaxBudget)
	assert.Nil(t, created.Deadline)
	assert.Equal(t, []string{}, created.Tags)
}

func TestJobRepo_UpdateStatusCAS(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := pgjob.New(pool)

	created, err := repo.Create(ctx, newJob("cas"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, created.ID, domainjob.StatusDistributed, domainjob.StatusOpen))

	err = repo.UpdateStatus(ctx, created.ID, domainjob.StatusCancelled, domainjob.StatusOpen)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	require.NoError(t, repo.UpdateStatus(ctx, created.ID, domainjob.StatusExpired, domainjob.Unresolved()...))
	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domainjob.StatusExpired, got.Status)
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt) || got.UpdatedAt.Equal(created.UpdatedAt))

	err = repo.UpdateStatus(ctx, uuid.New(), domainjob.StatusCancelled)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestJobRepo_ListAndCount(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := pgjob.New(pool)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		j := newJob("list")
		j.CreatedAt = time.Now().Add(-time.Duration(10-i) * time.Hour).UTC()
		created, err := repo.Create(ctx, j)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	require.NoError(t, repo.UpdateStatus(ctx, ids[2], domainjob.StatusCancelled))

	open := domainjob.StatusOpen
	oldest, err := repo.List(ctx, domainjob.ListFilters{Status: &open, OldestFirst: true})
	require.NoError(t, err)
	pos := map[uuid.UUID]int{}
	for i, j := range oldest {
		pos[j.ID] = i
		assert.Equal(t, domainjob.StatusOpen, j.Status)
	}
	require.Contains(t, pos, ids[0])
	require.Contains(t, pos, ids[1])
	assert.NotContains(t, pos, ids[2])
	assert.Less(t, pos[ids[0]], pos[ids[1]])

	limited, err := repo.List(ctx, domainjob.ListFilters{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts[domainjob.StatusOpen], 2)
	assert.GreaterOrEqual(t, counts[domainjob.StatusCancelled], 1)
}

//go:build integration

package distribution_test

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

// ── helpers ───────────────────────────────────────────────────────────────────

type env struct {
	jobs   *pgjob.Repository
	agents *pgagent.Repository
	dists  *pgdist.Repository
}

func newEnv(t *testing.T) env {
	t.Helper()
	pool := testutil.SetupTestDB(t)
	return env{jobs: pgjob.New(pool), agents: pgagent.New(pool), dists: pgdist.New(pool)}
}

func (e env) job(t *testing.T, deadline *time.Time) domainjob.Job {
	t.Helper()
	j, err := e.jobs.Create(context.Background(),
		domainjob.New("dist-"+uuid.NewString()[:8], "", "dev", []string{"go"}, skill.Advanced, nil, deadline))
	require.NoError(t, err)
	return j
}

func (e env) agentsN(t *testing.T, n int) []domainagent.Agent {
	t.Helper()
	out := make([]domainagent.Agent, n)
	for i := range out {
		name := "leg-" + uuid.NewString()[:8]
		a, err := e.agents.Create(context.Background(), domainagent.New(name, "http://"+name, nil, skill.Advanced))
		require.NoError(t, err)
		out[i] = a
	}
	return out
}

// openAll opens a distribution of j over agents with a one-minute fallback deadline.
func (e env) openAll(t *testing.T, j domainjob.Job, agents []domainagent.Agent) distribution.Record {
	t.Helper()
	rec := distribution.New(j, len(agents), time.Minute)
	assignments := make([]distribution.Assignment, len(agents))
	for i, a := range agents {
		assignments[i] = distribution.NewAssignment(rec.ID, a.ID, a.Name, a.Address, rec.CreatedAt)
	}
	created, err := e.dists.Open(context.Background(), rec, assignments)
	require.NoError(t, err)
	return created
}

func key(rec distribution.Record, a domainagent.Agent) distribution.Key {
	return distribution.Key{DistributionID: rec.ID, AgentID: a.ID}
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

// ── Open ──────────────────────────────────────────────────────────────────────

func TestOpen_PersistsRecordLegsAndJobStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	j := e.job(t, nil)
	agents := e.agentsN(t, 3)

	rec := distribution.New(j, 3, time.Minute)
	assignments := make([]distribution.Assignment, len(agents))
	for i, a := range agents {
		assignments[i] = distribution.NewAssignment(rec.ID, a.ID, a.Name, a.Address, rec.CreatedAt)
	}
	created, err := e.dists.Open(ctx, rec, assignments)
	require.NoError(t, err)
	assert.Equal(t, 3, created.TotalAgents)
	assert.Equal(t, 3, created.AssignedCount)
	assert.Zero(t, created.ResponseCount)
	assert.Equal(t, []string{"go"}, created.Criteria.Tags)
	assert.Equal(t, skill.Advanced, created.Criteria.SkillLevel)
	assert.False(t, created.Resolved())

	byJob, err := e.dists.GetByJobID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byJob.ID)

	got, err := e.dists.ListAssignments(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, a := range agents {
		assert.Equal(t, a.ID, got[i].AgentID, "listing keeps offer order")
		assert.Equal(t, distribution.StatusAssigned, got[i].WorkStatus)
	}

	stored, err := e.jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domainjob.StatusDistributed, stored.Status)
}

func TestOpen_Conflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	agents := e.agentsN(t, 2)

	j := e.job(t, nil)
	rec := distribution.New(j, 1, time.Minute)
	_, err := e.dists.Open(ctx, rec, []distribution.Assignment{
		distribution.NewAssignment(rec.ID, agents[0].ID, agents[0].Name, agents[0].Address, rec.CreatedAt),
	})
	require.NoError(t, err)

	t.Run("second distribution for the same job", func(t *testing.T) {
		again := distribution.New(j, 1, time.Minute)
		_, err := e.dists.Open(ctx, again, []distribution.Assignment{
			distribution.NewAssignment(again.ID, agents[1].ID, agents[1].Name, agents[1].Address, again.CreatedAt),
		})
		assert.True(t, errors.Is(err, apperr.ErrConflict))
	})

	t.Run("agent already holds an open leg", func(t *testing.T) {
		other := e.job(t, nil)
		r := distribution.New(other, 1, time.Minute)
		_, err := e.dists.Open(ctx, r, []distribution.Assignment{
			distribution.NewAssignment(r.ID, agents[0].ID, agents[0].Name, agents[0].Address, r.CreatedAt),
		})
		assert.True(t, errors.Is(err, apperr.ErrConflict))

		stored, err := e.jobs.GetByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, domainjob.StatusOpen, stored.Status, "failed open rolls the job back")
		_, err = e.dists.GetByJobID(ctx, other.ID)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("unknown job", func(t *testing.T) {
		ghost := domainjob.New("ghost", "", "dev", nil, skill.Beginner, nil, nil)
		_, err := e.dists.Open(ctx, distribution.New(ghost, 0, time.Minute), nil)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}

// ── Assignment updates ────────────────────────────────────────────────────────

func TestUpdateAssignment_CASAndPatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	j := e.job(t, nil)
	agents := e.agentsN(t, 1)
	rec := e.openAll(t, j, agents)
	k := key(rec, agents[0])

	working, err := e.dists.UpdateAssignment(ctx, k, distribution.SourcesOf(distribution.StatusWorking),
		distribution.Patch{Status: distribution.StatusWorking, Progress: intPtr(30)})
	require.NoError(t, err)
	require.NotNil(t, working.StartedAt)
	assert.Equal(t, 30, working.Progress)

	n, err := e.dists.RefreshResponseCount(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ms := int64(1500)
	done, err := e.dists.UpdateAssignment(ctx, k, distribution.SourcesOf(distribution.StatusCompleted),
		distribution.Patch{Status: distribution.StatusCompleted, Result: strPtr("ok"), ExecutionTimeMs: &ms})
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "ok", done.ExecutionResult)
	require.NotNil(t, done.CompletedAt)
	assert.WithinDuration(t, *working.StartedAt, *done.StartedAt, time.Millisecond)

	_, err = e.dists.UpdateAssignment(ctx, k, distribution.SourcesOf(distribution.StatusFailed),
		distribution.Patch{Status: distribution.StatusFailed})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	got, err := e.dists.GetAssignment(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, got.WorkStatus)

	_, err = e.dists.GetAssignment(ctx, distribution.Key{DistributionID: rec.ID, AgentID: uuid.New()})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

// ── Resolve ───────────────────────────────────────────────────────────────────

func TestResolve_CancelsOpenLegsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	j := e.job(t, nil)
	agents := e.agentsN(t, 3)
	rec := e.openAll(t, j, agents)

	_, err := e.dists.UpdateAssignment(ctx, key(rec, agents[0]), nil, distribution.Patch{Status: distribution.StatusWorking})
	require.NoError(t, err)
	_, err = e.dists.UpdateAssignment(ctx, key(rec, agents[0]), nil, distribution.Patch{Status: distribution.StatusCompleted, Result: strPtr("win")})
	require.NoError(t, err)
	_, err = e.dists.UpdateAssignment(ctx, key(rec, agents[1]), nil, distribution.Patch{Status: distribution.StatusWorking})
	require.NoError(t, err)

	_, err = e.dists.Resolve(ctx, distribution.Resolution{DistributionID: rec.ID, WinnerAgentID: agents[1].ID})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "a working leg cannot win")

	res := distribution.Resolution{
		DistributionID: rec.ID,
		WinnerAgentID:  agents[0].ID,
		WinnerName:     agents[0].Name,
		Message:        distribution.CancelledMessage,
		At:             time.Now().UTC(),
	}
	cancelled, err := e.dists.Resolve(ctx, res)
	require.NoError(t, err)
	require.Len(t, cancelled, 2)
	assert.Equal(t, agents[1].ID, cancelled[0].AgentID)
	assert.Equal(t, agents[2].ID, cancelled[1].AgentID)
	for _, c := range cancelled {
		assert.Equal(t, distribution.StatusCancelled, c.WorkStatus)
		assert.Equal(t, distribution.CancelledMessage, c.ErrorMessage)
		assert.Empty(t, c.ExecutionResult)
	}
	assert.NotNil(t, cancelled[0].StartedAt, "a started leg keeps its start time")
	assert.Nil(t, cancelled[1].StartedAt)

	stored, err := e.dists.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.WinningAgentID)
	assert.Equal(t, agents[0].ID, *stored.WinningAgentID)
	assert.Equal(t, agents[0].Name, stored.WinningAgentName)

	storedJob, err := e.jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domainjob.StatusCompleted, storedJob.Status)

	_, err = e.dists.Resolve(ctx, res)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = e.dists.Resolve(ctx, distribution.Resolution{DistributionID: uuid.New(), WinnerAgentID: agents[0].ID})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

// ── Expiry ────────────────────────────────────────────────────────────────────

func TestListExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	agents := e.agentsN(t, 2)

	soon := time.Now().Add(50 * time.Millisecond).UTC()
	expiring := e.job(t, &soon)
	expRec := e.openAll(t, expiring, agents[:1])

	later := time.Now().Add(time.Hour).UTC()
	live := e.job(t, &later)
	liveRec := e.openAll(t, live, agents[1:])

	expired, err := e.dists.ListExpired(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	ids := map[uuid.UUID]bool{}
	for _, r := range expired {
		ids[r.ID] = true
	}
	assert.True(t, ids[expRec.ID])
	assert.False(t, ids[liveRec.ID])

	require.NoError(t, e.jobs.UpdateStatus(ctx, expiring.ID, domainjob.StatusExpired, domainjob.Unresolved()...))
	expired, err = e.dists.ListExpired(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	for _, r := range expired {
		assert.NotEqual(t, expRec.ID, r.ID, "terminal jobs are not swept again")
	}
}

// ── Performance & logs ────────────────────────────────────────────────────────

func TestRecordOutcome_RunningAverage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.agentsN(t, 1)[0]

	p, err := e.dists.RecordOutcome(ctx, a.ID, true, 1000)
	require.NoError(t, err)
	assert.Equal(t, distribution.Performance{AgentID: a.ID, TotalJobs: 1, CompletedJobs: 1, AvgExecutionTimeMs: 1000, SuccessRate: 1, UpdatedAt: p.UpdatedAt}, p)

	_, err = e.dists.RecordOutcome(ctx, a.ID, false, 99999)
	require.NoError(t, err)
	p, err = e.dists.RecordOutcome(ctx, a.ID, true, 2000)
	require.NoError(t, err)

	assert.Equal(t, 3, p.TotalJobs)
	assert.Equal(t, 2, p.CompletedJobs)
	assert.Equal(t, 1, p.FailedJobs)
	assert.InDelta(t, 1500, p.AvgExecutionTimeMs, 0.001)
	assert.InDelta(t, 2.0/3.0, p.SuccessRate, 0.0001)

	got, err := e.dists.GetPerformance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, p.TotalJobs, got.TotalJobs)

	_, err = e.dists.GetPerformance(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	top, err := e.dists.TopPerformers(ctx, 0)
	require.NoError(t, err)
	found := false
	for _, tp := range top {
		found = found || tp.AgentID == a.ID
	}
	assert.True(t, found)
}

func TestLogs_AppendAndList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	j := e.job(t, nil)

	first := distribution.NewLogEntry(j.ID, uuid.New(), uuid.Nil, "distribution_opened", map[string]any{"agents": 2})
	second := distribution.NewLogEntry(j.ID, first.DistributionID, uuid.New(), "assignment_completed", nil)
	second.Timestamp = first.Timestamp.Add(time.Millisecond)
	require.NoError(t, e.dists.AppendLog(ctx, first))
	require.NoError(t, e.dists.AppendLog(ctx, second))

	logs, err := e.dists.ListLogs(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "distribution_opened", logs[0].EventType)
	assert.Equal(t, float64(2), logs[0].Payload["agents"])
	assert.Equal(t, uuid.Nil, logs[0].AgentID)
	assert.Equal(t, second.AgentID, logs[1].AgentID)
}

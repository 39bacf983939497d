package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
	"github.com/alanyang/job-dispatch/internal/port/agentclient"
	"github.com/alanyang/job-dispatch/internal/service/coordinator"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
	"github.com/alanyang/job-dispatch/internal/testutil"
)

func newCoordinator(f *testutil.Fixture, client agentclient.Client) *coordinator.Service {
	d := f.Store.Distributions()
	tr := tracker.NewService(d, d, d, f.Store.Agents(), f.Bus, nil)
	return coordinator.NewService(f.Store.Jobs(), d, tr, client, f.Bus, nil, coordinator.Config{Timeout: time.Minute})
}

func TestOpen_WritesRecordLegsAndJobStatus(t *testing.T) {
	f := testutil.NewFixture()
	svc := newCoordinator(f, testutil.NewFakeAgentClient())
	ctx := context.Background()
	j := f.Job(t, []string{"go", "sql"}, skill.Advanced)
	agents := f.Agents(t, 3, []string{"go"}, skill.Expert)

	rec, err := svc.Open(ctx, j, agents)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TotalAgents)
	assert.Equal(t, 3, rec.AssignedCount)
	assert.Equal(t, 0, rec.ResponseCount)
	assert.Equal(t, j.Title, rec.JobName)
	assert.Equal(t, []string{"go", "sql"}, rec.Criteria.Tags)
	assert.True(t, rec.Criteria.IsActive)
	assert.True(t, rec.Criteria.AutoAcceptJobs)

	legs, err := f.Store.Distributions().ListAssignments(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, legs, 3)
	for i, l := range legs {
		assert.Equal(t, agents[i].ID, l.AgentID)
		assert.Equal(t, distribution.StatusAssigned, l.WorkStatus)
	}

	got, _ := f.Store.Jobs().GetByID(ctx, j.ID)
	assert.Equal(t, job.StatusDistributed, got.Status)
}

func TestOpen_Errors(t *testing.T) {
	f := testutil.NewFixture()
	svc := newCoordinator(f, testutil.NewFakeAgentClient())
	ctx := context.Background()
	agents := f.Agents(t, 1, nil, skill.Beginner)

	j := f.Job(t, nil, skill.Beginner)
	_, err := svc.Open(ctx, j, nil)
	assert.True(t, errors.Is(err, coordinator.ErrNoAgents))

	ghost := job.New("ghost", "", "dev", nil, skill.Beginner, nil, nil)
	_, err = svc.Open(ctx, ghost, agents)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestOpen_UsesJobDeadline(t *testing.T) {
	f := testutil.NewFixture()
	svc := newCoordinator(f, testutil.NewFakeAgentClient())
	ctx := context.Background()
	deadline := time.Now().Add(3 * time.Hour).UTC()
	j, err := f.Store.Jobs().Create(ctx, job.New("t", "", "dev", nil, skill.Beginner, nil, &deadline))
	require.NoError(t, err)

	rec, err := svc.Open(ctx, j, f.Agents(t, 1, nil, skill.Beginner))
	require.NoError(t, err)
	assert.True(t, rec.Deadline.Equal(deadline))
}

func TestCancelJob(t *testing.T) {
	f := testutil.NewFixture()
	svc := newCoordinator(f, testutil.NewFakeAgentClient())
	ctx := context.Background()
	j := f.Job(t, nil, skill.Beginner)

	require.NoError(t, svc.CancelJob(ctx, j.ID, "no eligible agents"))

	got, _ := f.Store.Jobs().GetByID(ctx, j.ID)
	assert.Equal(t, job.StatusCancelled, got.Status)
	_, err := f.Store.Distributions().GetByJobID(ctx, j.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDispatch_RecordsEveryOutcome(t *testing.T) {
	f := testutil.NewFixture()
	client := testutil.NewFakeAgentClient()
	svc := newCoordinator(f, client)
	ctx := context.Background()
	j := f.Job(t, []string{"go"}, skill.Beginner)
	agents := f.Agents(t, 3, []string{"go"}, skill.Beginner)
	client.Script(agents[0].Address, testutil.AgentBehavior{Result: "done", Delay: 10 * time.Millisecond})
	client.Script(agents[1].Address, testutil.AgentBehavior{Err: "agent returned status 400"})
	client.Script(agents[2].Address, testutil.AgentBehavior{Result: "also done"})

	rec, err := svc.Open(ctx, j, agents)
	require.NoError(t, err)

	var mu sync.Mutex
	var settled []distribution.WorkStatus
	err = svc.Dispatch(ctx, rec.ID, func(_ context.Context, a distribution.Assignment) {
		mu.Lock()
		settled = append(settled, a.WorkStatus)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Len(t, settled, 3)

	legs, err := f.Store.Distributions().ListAssignments(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, legs[0].WorkStatus)
	assert.Equal(t, "done", legs[0].ExecutionResult)
	assert.Equal(t, distribution.StatusFailed, legs[1].WorkStatus)
	assert.Equal(t, "agent returned status 400", legs[1].ErrorMessage)
	assert.Equal(t, distribution.StatusCompleted, legs[2].WorkStatus)

	got, _ := f.Store.Jobs().GetByID(ctx, j.ID)
	assert.Equal(t, job.StatusInProgress, got.Status)

	gotRec, _ := f.Store.Distributions().GetByID(ctx, rec.ID)
	assert.Equal(t, 3, gotRec.ResponseCount)

	calls := client.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, rec.ID.String(), c.DistributionID)
		assert.Equal(t, []string{"go"}, c.Tags)
		assert.Equal(t, "beginner", c.SkillLevel)
	}
}

func TestDispatch_RunsLegsConcurrently(t *testing.T) {
	f := testutil.NewFixture()
	client := testutil.NewFakeAgentClient()
	svc := newCoordinator(f, client)
	ctx := context.Background()
	j := f.Job(t, nil, skill.Beginner)
	agents := f.Agents(t, 4, nil, skill.Beginner)
	for _, a := range agents {
		client.Script(a.Address, testutil.AgentBehavior{Result: "r", Delay: 100 * time.Millisecond})
	}
	rec, err := svc.Open(ctx, j, agents)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, svc.Dispatch(ctx, rec.ID, nil))
	assert.Less(t, time.Since(start), 350*time.Millisecond)
}

func TestDispatch_SkipsSettledLegs(t *testing.T) {
	f := testutil.NewFixture()
	client := testutil.NewFakeAgentClient()
	svc := newCoordinator(f, client)
	ctx := context.Background()
	j := f.Job(t, nil, skill.Beginner)
	agents := f.Agents(t, 2, nil, skill.Beginner)
	rec, err := svc.Open(ctx, j, agents)
	require.NoError(t, err)

	_, err = f.Store.Distributions().UpdateAssignment(ctx, testutil.Key(rec, agents[0]), nil,
		distribution.Patch{Status: distribution.StatusTimeout})
	require.NoError(t, err)

	require.NoError(t, svc.Dispatch(ctx, rec.ID, nil))
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, agents[1].ID.String(), calls[0].AgentID)
}

func TestDispatch_UnknownDistribution(t *testing.T) {
	f := testutil.NewFixture()
	svc := newCoordinator(f, testutil.NewFakeAgentClient())
	err := svc.Dispatch(context.Background(), uuid.New(), nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

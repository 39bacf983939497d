package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alanyang/job-dispatch/internal/adapter/memory"
	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
	"github.com/alanyang/job-dispatch/internal/mocks"
	jobsvc "github.com/alanyang/job-dispatch/internal/service/job"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
	"github.com/alanyang/job-dispatch/internal/testutil"
)

func newMemorySvc() (*jobsvc.Service, *testutil.Fixture, *memory.Queue) {
	f := testutil.NewFixture()
	q := memory.NewQueue()
	d := f.Store.Distributions()
	return jobsvc.NewService(f.Store.Jobs(), d, d, d, q, memory.NewIdempotency(), f.Bus, nil), f, q
}

func validSubmission() jobsvc.Submission {
	budget := 25.0
	deadline := time.Now().Add(time.Hour)
	return jobsvc.Submission{
		Title:       "Translate release notes",
		Description: "en → de",
		Category:    "translation",
		Tags:        []string{"German", "german", " docs "},
		SkillLevel:  "Advanced",
		MaxBudget:   &budget,
		Deadline:    &deadline,
	}
}

func TestSubmit_PersistsAndEnqueues(t *testing.T) {
	svc, f, q := newMemorySvc()
	ctx := context.Background()

	j, err := svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	assert.Equal(t, domainjob.StatusOpen, j.Status)
	assert.Equal(t, skill.Advanced, j.SkillLevel)
	assert.Equal(t, []string{"german", "docs"}, j.Tags)

	stored, err := f.Store.Jobs().GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, stored.ID)

	ids, err := q.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{j.ID}, ids)
}

func TestSubmit_Validation(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	negative := -1.0

	tests := []struct {
		name    string
		mutate  func(s *jobsvc.Submission)
		wantMsg string
	}{
		{name: "missing title", mutate: func(s *jobsvc.Submission) { s.Title = "  " }, wantMsg: "title"},
		{name: "missing category", mutate: func(s *jobsvc.Submission) { s.Category = "" }, wantMsg: "category"},
		{name: "unknown skill", mutate: func(s *jobsvc.Submission) { s.SkillLevel = "guru" }, wantMsg: "skill"},
		{name: "deadline in the past", mutate: func(s *jobsvc.Submission) { s.Deadline = &past }, wantMsg: "deadline"},
		{name: "negative budget", mutate: func(s *jobsvc.Submission) { s.MaxBudget = &negative }, wantMsg: "budget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, q := newMemorySvc()
			sub := validSubmission()
			tt.mutate(&sub)

			_, err := svc.Submit(context.Background(), sub)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Zero(t, q.Len())
		})
	}
}

func TestSubmit_EnqueueFailureKeepsJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	queue := mocks.NewMockQueue(ctrl)
	bus := mocks.NewMockEventBus(ctrl)
	d := mocks.NewMockDistributionRepository(ctrl)
	svc := jobsvc.NewService(repo, d, mocks.NewMockPerformanceRepository(ctrl), mocks.NewMockLogRepository(ctrl), queue,
		memory.NewIdempotency(), bus, nil)

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, j domainjob.Job) (domainjob.Job, error) { return j, nil })
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(errors.New("queue full"))

	j, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, j.ID)
}

func TestSubmit_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	svc := jobsvc.NewService(repo, mocks.NewMockDistributionRepository(ctrl), mocks.NewMockPerformanceRepository(ctrl),
		mocks.NewMockLogRepository(ctrl), mocks.NewMockQueue(ctrl), memory.NewIdempotency(), mocks.NewMockEventBus(ctrl), nil)

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(domainjob.Job{}, apperr.ErrPersistence)

	_, err := svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrPersistence))
	assert.Contains(t, err.Error(), "create job")
}

func TestSubmitOnce(t *testing.T) {
	svc, _, q := newMemorySvc()
	ctx := context.Background()

	first, replayed, err := svc.SubmitOnce(ctx, "req-1", validSubmission())
	require.NoError(t, err)
	assert.False(t, replayed)

	again, replayed, err := svc.SubmitOnce(ctx, "req-1", validSubmission())
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, q.Len())

	other, replayed, err := svc.SubmitOnce(ctx, "", validSubmission())
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, 2, q.Len())
}

func TestSubmitOnce_FailedSubmissionIsNotRemembered(t *testing.T) {
	svc, _, _ := newMemorySvc()
	ctx := context.Background()
	bad := validSubmission()
	bad.Title = ""

	_, _, err := svc.SubmitOnce(ctx, "req-2", bad)
	require.Error(t, err)

	j, replayed, err := svc.SubmitOnce(ctx, "req-2", validSubmission())
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "Translate release notes", j.Title)
}

func TestStatus(t *testing.T) {
	svc, f, _ := newMemorySvc()
	ctx := context.Background()

	t.Run("job without distribution", func(t *testing.T) {
		j := f.Job(t, nil, skill.Beginner)
		view, err := svc.Status(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, j.ID, view.Job.ID)
		assert.Nil(t, view.Distribution)
		assert.Nil(t, view.Stats)
	})

	t.Run("distributed job", func(t *testing.T) {
		j := f.Job(t, nil, skill.Beginner)
		agents := f.Agents(t, 2, nil, skill.Beginner)
		rec := f.Open(t, j, agents)
		d := f.Store.Distributions()
		tr := tracker.NewService(d, d, d, f.Store.Agents(), f.Bus, nil)
		_, err := tr.Completed(ctx, testutil.Key(rec, agents[0]), "done", time.Second)
		require.NoError(t, err)

		view, err := svc.Status(ctx, j.ID)
		require.NoError(t, err)
		require.NotNil(t, view.Distribution)
		assert.Equal(t, rec.ID, view.Distribution.ID)
		assert.Len(t, view.Assignments, 2)
		assert.Equal(t, distribution.Stats{Total: 2, Assigned: 1, Completed: 1}, *view.Stats)
		assert.NotEmpty(t, view.Logs)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := svc.Status(ctx, uuid.New())
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}

func TestStats(t *testing.T) {
	svc, f, q := newMemorySvc()
	ctx := context.Background()
	j := f.Job(t, nil, skill.Beginner)
	agents := f.Agents(t, 1, nil, skill.Beginner)
	rec := f.Open(t, j, agents)
	f.Job(t, nil, skill.Beginner)
	require.NoError(t, q.Enqueue(ctx, uuid.New()))

	d := f.Store.Distributions()
	tr := tracker.NewService(d, d, d, f.Store.Agents(), f.Bus, nil)
	_, err := tr.Failed(ctx, testutil.Key(rec, agents[0]), "no", time.Second, 2)
	require.NoError(t, err)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Jobs[domainjob.StatusOpen])
	assert.Equal(t, 1, st.Jobs[domainjob.StatusDistributed])
	assert.Equal(t, 1, st.Assignments[distribution.StatusFailed])
	require.Len(t, st.TopAgents, 1)
	assert.Equal(t, agents[0].ID, st.TopAgents[0].AgentID)
	assert.Equal(t, 1, st.QueueDepth)
}

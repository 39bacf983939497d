package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/agent"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/event"
	"github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/metrics"
	"github.com/alanyang/job-dispatch/internal/observability"
	"github.com/alanyang/job-dispatch/internal/port/agentclient"
	portdist "github.com/alanyang/job-dispatch/internal/port/distribution"
	portbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
	portjob "github.com/alanyang/job-dispatch/internal/port/job"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
)

var ErrNoAgents = fmt.Errorf("%w: no agents to distribute to", apperr.ErrValidation)

// SettledFunc is invoked after each leg records its outcome during Dispatch.
type SettledFunc func(ctx context.Context, a distribution.Assignment)

type Config struct {
	Retry agentclient.RetryPolicy
	// Timeout is the distribution deadline used when the job has none.
	Timeout time.Duration
}

// Service opens distributions and fans calls out to their agents.
// [SRP] It never picks a winner; the selector does.
type Service struct {
	jobs    portjob.Repository
	dists   portdist.Repository
	tracker *tracker.Service
	client  agentclient.Client
	bus     portbus.EventBus
	metrics *metrics.Collector
	cfg     Config
}

func NewService(
	jobs portjob.Repository,
	dists portdist.Repository,
	tr *tracker.Service,
	client agentclient.Client,
	bus portbus.EventBus,
	m *metrics.Collector,
	cfg Config,
) *Service {
	return &Service{jobs: jobs, dists: dists, tracker: tr, client: client, bus: bus, metrics: m, cfg: cfg}
}

// Open atomically records the distribution of j over ranked, creates one Assigned leg per agent
// in rank order and moves the job to Distributed.
func (s *Service) Open(ctx context.Context, j job.Job, ranked []agent.Agent) (distribution.Record, error) {
	if len(ranked) == 0 {
		return distribution.Record{}, ErrNoAgents
	}
	rec := distribution.New(j, len(ranked), s.cfg.Timeout)
	legs := make([]distribution.Assignment, len(ranked))
	for i, a := range ranked {
		legs[i] = distribution.NewAssignment(rec.ID, a.ID, a.Name, a.Address, rec.CreatedAt)
	}

	opened, err := s.dists.Open(ctx, rec, legs)
	if err != nil {
		return distribution.Record{}, fmt.Errorf("open distribution: %w", err)
	}
	s.metrics.DistributionOpened()
	if err := s.bus.Publish(ctx, event.New(event.TypeJobDistributed, j.ID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish JobDistributed event", "job_id", j.ID, "error", err)
	}
	slog.InfoContext(ctx, "distribution opened",
		"job_id", j.ID, "distribution_id", opened.ID, "agents", opened.TotalAgents)
	return opened, nil
}

// CancelJob closes a job that no agent can take. No distribution is created.
func (s *Service) CancelJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	if err := s.jobs.UpdateStatus(ctx, jobID, job.StatusCancelled, job.StatusOpen); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	s.metrics.JobOutcome(string(job.StatusCancelled))
	if err := s.bus.Publish(ctx, event.New(event.TypeJobCancelled, jobID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish JobCancelled event", "job_id", jobID, "error", err)
	}
	slog.InfoContext(ctx, "job cancelled", "job_id", jobID, "reason", reason)
	return nil
}

// Dispatch calls every Assigned leg concurrently and records each outcome through the tracker.
// It waits for all legs; one failure never short-circuits the others. Afterwards the job moves
// Distributed → InProgress unless a winner was already selected.
func (s *Service) Dispatch(ctx context.Context, distributionID uuid.UUID, onSettled SettledFunc) (err error) {
	ctx, span := observability.StartSpan(ctx, "distribution.dispatch",
		attribute.String("distribution.id", distributionID.String()))
	defer func() { observability.EndSpan(span, err) }()

	rec, err := s.dists.GetByID(ctx, distributionID)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	j, err := s.jobs.GetByID(ctx, rec.JobID)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	legs, err := s.dists.ListAssignments(ctx, distributionID)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, leg := range legs {
		if leg.WorkStatus != distribution.StatusAssigned {
			continue
		}
		g.Go(func() error {
			s.dispatchOne(gctx, rec, j, leg, onSettled)
			return nil
		})
	}
	_ = g.Wait()

	// Recording continues even if the caller gave up; the legs are already settled.
	bg := context.WithoutCancel(ctx)
	if err := s.jobs.UpdateStatus(bg, j.ID, job.StatusInProgress, job.StatusDistributed); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			return fmt.Errorf("mark job in progress: %w", err)
		}
		slog.DebugContext(ctx, "job already left distributed", "job_id", j.ID)
	} else if err := s.bus.Publish(bg, event.New(event.TypeJobInProgress, j.ID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish JobInProgress event", "job_id", j.ID, "error", err)
	}

	if _, err := s.tracker.RefreshResponseCount(bg, distributionID); err != nil {
		return err
	}
	return nil
}

func (s *Service) dispatchOne(ctx context.Context, rec distribution.Record, j job.Job, leg distribution.Assignment, onSettled SettledFunc) {
	key := leg.Key()
	if _, err := s.tracker.Track(ctx, key); err != nil {
		slog.WarnContext(ctx, "leg not dispatched", "task_id", key.TaskID(), "error", err)
		return
	}

	resp, callErr := s.client.Call(ctx, leg.AgentAddress, Payload(rec, j, leg), s.cfg.Retry)

	bg := context.WithoutCancel(ctx)
	var (
		settled distribution.Assignment
		err     error
	)
	switch {
	case callErr != nil:
		settled, err = s.tracker.Failed(bg, key, callErr.Error(), resp.Elapsed, retries(resp))
	case resp.Success:
		settled, err = s.tracker.Completed(bg, key, resp.Result, resp.Elapsed)
	default:
		settled, err = s.tracker.Failed(bg, key, resp.Error, resp.Elapsed, retries(resp))
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to record agent outcome", "task_id", key.TaskID(), "error", err)
		return
	}
	if onSettled != nil {
		onSettled(bg, settled)
	}
}

func retries(resp agentclient.AgentResponse) int {
	if resp.Attempts <= 1 {
		return 0
	}
	return resp.Attempts - 1
}

// Payload builds the request body for one leg from the frozen criteria and the job content.
func Payload(rec distribution.Record, j job.Job, leg distribution.Assignment) agentclient.Payload {
	c := rec.Criteria
	return agentclient.Payload{
		TaskID:         leg.Key().TaskID(),
		JobID:          rec.JobID.String(),
		DistributionID: rec.ID.String(),
		AgentID:        leg.AgentID.String(),
		Title:          j.Title,
		Description:    j.Description,
		Category:       c.Category,
		Tags:           c.Tags,
		SkillLevel:     string(c.SkillLevel),
		MaxBudget:      c.MaxBudget,
		Deadline:       j.Deadline,
	}
}

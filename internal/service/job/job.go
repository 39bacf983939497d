package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/event"
	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
	"github.com/alanyang/job-dispatch/internal/metrics"
	portdist "github.com/alanyang/job-dispatch/internal/port/distribution"
	portbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
	portidem "github.com/alanyang/job-dispatch/internal/port/idempotency"
	portjob "github.com/alanyang/job-dispatch/internal/port/job"
	portqueue "github.com/alanyang/job-dispatch/internal/port/queue"
)

const (
	topPerformers = 10
	opSubmitJob   = "submit_job"
)

// Submission is the content of a new job.
type Submission struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	SkillLevel  string     `json:"skill_level"`
	MaxBudget   *float64   `json:"max_budget,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// StatusView is a job with everything known about its distribution.
type StatusView struct {
	Job          domainjob.Job             `json:"job"`
	Distribution *distribution.Record      `json:"distribution,omitempty"`
	Assignments  []distribution.Assignment `json:"assignments,omitempty"`
	Stats        *distribution.Stats       `json:"stats,omitempty"`
	Logs         []distribution.LogEntry   `json:"logs,omitempty"`
}

// ExecutionStats are the aggregate counters of the control surface.
type ExecutionStats struct {
	Jobs        map[domainjob.Status]int        `json:"jobs"`
	Assignments map[distribution.WorkStatus]int `json:"assignments"`
	TopAgents   []distribution.Performance      `json:"top_agents"`
	QueueDepth  int                             `json:"queue_depth"`
}

// Service is the intake side: it validates and persists jobs and hands them to the worker queue.
// [SRP] It never distributes; the orchestrator does.
type Service struct {
	repo    portjob.Repository
	dists   portdist.Repository
	perf    portdist.PerformanceRepository
	logs    portdist.LogRepository
	queue   portqueue.Queue
	idem    portidem.Store
	bus     portbus.EventBus
	metrics *metrics.Collector
}

func NewService(
	repo portjob.Repository,
	dists portdist.Repository,
	perf portdist.PerformanceRepository,
	logs portdist.LogRepository,
	queue portqueue.Queue,
	idem portidem.Store,
	bus portbus.EventBus,
	m *metrics.Collector,
) *Service {
	return &Service{repo: repo, dists: dists, perf: perf, logs: logs, queue: queue, idem: idem, bus: bus, metrics: m}
}

// Submit persists an Open job and enqueues it. A job that could not be enqueued stays Open and is
// picked up by the next manual processing run.
func (s *Service) Submit(ctx context.Context, sub Submission) (domainjob.Job, error) {
	level := skill.Level(strings.ToLower(strings.TrimSpace(sub.SkillLevel)))
	var deadline *time.Time
	if sub.Deadline != nil {
		d := sub.Deadline.UTC()
		deadline = &d
	}
	j := domainjob.New(strings.TrimSpace(sub.Title), sub.Description, strings.TrimSpace(sub.Category),
		sub.Tags, level, sub.MaxBudget, deadline)
	if err := j.Validate(time.Now().UTC()); err != nil {
		return domainjob.Job{}, err
	}

	created, err := s.repo.Create(ctx, j)
	if err != nil {
		return domainjob.Job{}, fmt.Errorf("create job: %w", err)
	}
	s.metrics.JobSubmitted()

	if err := s.bus.Publish(ctx, event.New(event.TypeJobSubmitted, created.ID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish JobSubmitted event", "job_id", created.ID, "error", err)
	}
	if err := s.queue.Enqueue(ctx, created.ID); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue job", "job_id", created.ID, "error", err)
	} else {
		s.metrics.QueueDepth(s.queue.Len())
	}
	return created, nil
}

// SubmitOnce is Submit keyed by a client idempotency key: a repeated key returns the job created
// the first time. An empty key behaves like Submit. Two concurrent first submissions with the same
// key may both create a job; only the first is remembered.
func (s *Service) SubmitOnce(ctx context.Context, key string, sub Submission) (domainjob.Job, bool, error) {
	if key == "" {
		j, err := s.Submit(ctx, sub)
		return j, false, err
	}
	raw, seen, err := s.idem.Check(ctx, opSubmitJob+":"+key)
	if err != nil {
		return domainjob.Job{}, false, fmt.Errorf("check idempotency key: %w", err)
	}
	if seen {
		var prior domainjob.Job
		if err := json.Unmarshal(raw, &prior); err != nil {
			return domainjob.Job{}, false, fmt.Errorf("decode prior submission: %w", err)
		}
		current, err := s.Get(ctx, prior.ID)
		if err != nil {
			return domainjob.Job{}, false, err
		}
		return current, true, nil
	}

	j, err := s.Submit(ctx, sub)
	if err != nil {
		return domainjob.Job{}, false, err
	}
	if raw, err := json.Marshal(j); err == nil {
		if err := s.idem.Save(ctx, opSubmitJob+":"+key, opSubmitJob, raw); err != nil {
			slog.WarnContext(ctx, "failed to store idempotency key", "job_id", j.ID, "error", err)
		}
	}
	return j, false, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domainjob.Job, error) {
	j, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domainjob.Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *Service) List(ctx context.Context, filters domainjob.ListFilters) ([]domainjob.Job, error) {
	jobs, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Status returns the job, its distribution if one was opened, every leg and the audit log.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (StatusView, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{Job: j}

	rec, err := s.dists.GetByJobID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return StatusView{}, fmt.Errorf("get distribution: %w", err)
	}
	legs, err := s.dists.ListAssignments(ctx, rec.ID)
	if err != nil {
		return StatusView{}, fmt.Errorf("list assignments: %w", err)
	}
	st := distribution.StatsOf(legs)
	view.Distribution, view.Assignments, view.Stats = &rec, legs, &st

	logs, err := s.logs.ListLogs(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "execution log unavailable", "job_id", id, "error", err)
	}
	view.Logs = logs
	return view, nil
}

func (s *Service) Stats(ctx context.Context) (ExecutionStats, error) {
	jobs, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return ExecutionStats{}, fmt.Errorf("count jobs: %w", err)
	}
	legs, err := s.dists.CountAssignmentsByStatus(ctx)
	if err != nil {
		return ExecutionStats{}, fmt.Errorf("count assignments: %w", err)
	}
	top, err := s.perf.TopPerformers(ctx, topPerformers)
	if err != nil {
		return ExecutionStats{}, fmt.Errorf("top performers: %w", err)
	}
	return ExecutionStats{Jobs: jobs, Assignments: legs, TopAgents: top, QueueDepth: s.queue.Len()}, nil
}

package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/event"
	"github.com/alanyang/job-dispatch/internal/metrics"
	portagent "github.com/alanyang/job-dispatch/internal/port/agent"
	portdist "github.com/alanyang/job-dispatch/internal/port/distribution"
	portbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
)

var (
	// ErrStaleTransition means the assignment is already terminal. Agent responses that arrive
	// after a leg was cancelled or timed out hit this and are dropped.
	ErrStaleTransition = fmt.Errorf("assignment already terminal: %w", apperr.ErrConflict)

	// ErrInvalidTransition means the requested status is not reachable from the current one.
	ErrInvalidTransition = fmt.Errorf("invalid assignment transition: %w", apperr.ErrConflict)
)

// Service owns the per-assignment state machine.
// [SRP] Every assignment write in the system goes through here or through the atomic Resolve,
// whose effects are reported back via RecordResolved.
type Service struct {
	repo    portdist.Repository
	perf    portdist.PerformanceRepository
	logs    portdist.LogRepository
	agents  portagent.StatsWriter
	bus     portbus.EventBus
	metrics *metrics.Collector
}

func NewService(
	repo portdist.Repository,
	perf portdist.PerformanceRepository,
	logs portdist.LogRepository,
	agents portagent.StatsWriter,
	bus portbus.EventBus,
	m *metrics.Collector,
) *Service {
	return &Service{repo: repo, perf: perf, logs: logs, agents: agents, bus: bus, metrics: m}
}

func (s *Service) Get(ctx context.Context, key distribution.Key) (distribution.Assignment, error) {
	a, err := s.repo.GetAssignment(ctx, key)
	if err != nil {
		return distribution.Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, distributionID uuid.UUID) ([]distribution.Assignment, error) {
	as, err := s.repo.ListAssignments(ctx, distributionID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return as, nil
}

// Track moves an Assigned leg to Working and stamps startedAt.
func (s *Service) Track(ctx context.Context, key distribution.Key) (distribution.Assignment, error) {
	return s.UpdateStatus(ctx, key, distribution.Patch{Status: distribution.StatusWorking})
}

// UpdateStatus applies a partial update. An empty patch.Status keeps the current status and is
// only accepted on an open leg. Every accepted transition is logged and published, best-effort.
func (s *Service) UpdateStatus(ctx context.Context, key distribution.Key, patch distribution.Patch) (distribution.Assignment, error) {
	current, err := s.repo.GetAssignment(ctx, key)
	if err != nil {
		return distribution.Assignment{}, fmt.Errorf("update assignment: %w", err)
	}
	if patch.Progress != nil && (*patch.Progress < 0 || *patch.Progress > 100) {
		return distribution.Assignment{}, fmt.Errorf("%w: progress %d out of range", apperr.ErrValidation, *patch.Progress)
	}

	target := patch.Status
	if target == "" {
		target = current.WorkStatus
	}
	if current.WorkStatus.IsTerminal() {
		return current, fmt.Errorf("%s %s: %w", key.TaskID(), current.WorkStatus, ErrStaleTransition)
	}
	if target != current.WorkStatus && !current.WorkStatus.CanTransitionTo(target) {
		return current, fmt.Errorf("%s %s → %s: %w", key.TaskID(), current.WorkStatus, target, ErrInvalidTransition)
	}

	from := []distribution.WorkStatus{current.WorkStatus}
	updated, err := s.repo.UpdateAssignment(ctx, key, from, patch)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// Lost a race with another writer (selection or sweep).
			latest, getErr := s.repo.GetAssignment(ctx, key)
			if getErr == nil && latest.WorkStatus.IsTerminal() {
				return latest, fmt.Errorf("%s %s: %w", key.TaskID(), latest.WorkStatus, ErrStaleTransition)
			}
		}
		return distribution.Assignment{}, fmt.Errorf("update assignment: %w", err)
	}

	if updated.WorkStatus != current.WorkStatus {
		s.observe(ctx, updated, nil)
	}
	return updated, nil
}

// Completed records a successful result. A leg still Assigned is tracked first. A late result
// for a terminal leg is a no-op that returns the leg unchanged.
func (s *Service) Completed(ctx context.Context, key distribution.Key, result string, elapsed time.Duration) (distribution.Assignment, error) {
	ms := elapsed.Milliseconds()
	patch := distribution.Patch{
		Status:          distribution.StatusCompleted,
		Result:          &result,
		ExecutionTimeMs: &ms,
	}
	return s.finish(ctx, key, patch, true)
}

// Failed records a failed call, after retries.
func (s *Service) Failed(ctx context.Context, key distribution.Key, errMsg string, elapsed time.Duration, retries int) (distribution.Assignment, error) {
	ms := elapsed.Milliseconds()
	patch := distribution.Patch{
		Status:          distribution.StatusFailed,
		Error:           &errMsg,
		ExecutionTimeMs: &ms,
		RetryCount:      &retries,
	}
	return s.finish(ctx, key, patch, false)
}

// Timeout closes an open leg whose distribution deadline passed. It counts against the agent.
func (s *Service) Timeout(ctx context.Context, key distribution.Key) (distribution.Assignment, error) {
	msg := distribution.TimeoutMessage
	a, err := s.UpdateStatus(ctx, key, distribution.Patch{Status: distribution.StatusTimeout, Error: &msg})
	if err != nil {
		return a, err
	}
	s.recordPerformance(ctx, a.AgentID, false, 0)
	return a, nil
}

func (s *Service) finish(ctx context.Context, key distribution.Key, patch distribution.Patch, success bool) (distribution.Assignment, error) {
	current, err := s.repo.GetAssignment(ctx, key)
	if err != nil {
		return distribution.Assignment{}, fmt.Errorf("finish assignment: %w", err)
	}
	if current.WorkStatus == distribution.StatusAssigned {
		if _, err := s.Track(ctx, key); err != nil && !errors.Is(err, ErrStaleTransition) {
			return distribution.Assignment{}, err
		}
	}

	a, err := s.UpdateStatus(ctx, key, patch)
	if errors.Is(err, ErrStaleTransition) {
		slog.DebugContext(ctx, "late agent response ignored",
			"task_id", key.TaskID(), "status", a.WorkStatus, "wanted", patch.Status)
		return a, nil
	}
	if err != nil {
		return a, err
	}

	var ms int64
	if patch.ExecutionTimeMs != nil {
		ms = *patch.ExecutionTimeMs
	}
	s.recordPerformance(ctx, a.AgentID, success, ms)
	return a, nil
}

// recordPerformance upserts the aggregate and mirrors it onto the agent. Failures are logged only.
func (s *Service) recordPerformance(ctx context.Context, agentID uuid.UUID, success bool, ms int64) {
	p, err := s.perf.RecordOutcome(ctx, agentID, success, ms)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record agent performance", "agent_id", agentID, "error", err)
		return
	}
	if err := s.agents.UpdateStats(ctx, agentID, p.CompletedJobs, p.SuccessRate); err != nil {
		slog.ErrorContext(ctx, "failed to mirror agent stats", "agent_id", agentID, "error", err)
	}
}

// RecordResolved logs, publishes and counts legs that the atomic resolve cancelled.
func (s *Service) RecordResolved(ctx context.Context, cancelled []distribution.Assignment) {
	for _, a := range cancelled {
		s.observe(ctx, a, map[string]any{"reason": a.ErrorMessage})
	}
}

func (s *Service) observe(ctx context.Context, a distribution.Assignment, extra map[string]any) {
	s.metrics.Transition(string(a.WorkStatus))

	payload := map[string]any{
		"status":   string(a.WorkStatus),
		"progress": a.Progress,
	}
	if a.ErrorMessage != "" {
		payload["error"] = a.ErrorMessage
	}
	if a.ExecutionTimeMs > 0 {
		payload["execution_time_ms"] = a.ExecutionTimeMs
	}
	for k, v := range extra {
		payload[k] = v
	}

	if rec, err := s.repo.GetByID(ctx, a.DistributionID); err != nil {
		slog.WarnContext(ctx, "execution log skipped", "distribution_id", a.DistributionID, "error", err)
	} else {
		entry := distribution.NewLogEntry(rec.JobID, a.DistributionID, a.AgentID, "assignment_"+string(a.WorkStatus), payload)
		if err := s.logs.AppendLog(ctx, entry); err != nil {
			slog.ErrorContext(ctx, "failed to append execution log", "task_id", a.Key().TaskID(), "error", err)
		}
	}

	if err := s.bus.Publish(ctx, event.NewFor(event.TypeAssignmentUpdated, a.DistributionID, a.AgentID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish AssignmentUpdated event", "task_id", a.Key().TaskID(), "error", err)
	}
}

// CompletedCount returns how many legs of the distribution completed.
func (s *Service) CompletedCount(ctx context.Context, distributionID uuid.UUID) (int, error) {
	st, err := s.Stats(ctx, distributionID)
	if err != nil {
		return 0, err
	}
	return st.Completed, nil
}

// IsResolvable reports whether at least one leg completed.
func (s *Service) IsResolvable(ctx context.Context, distributionID uuid.UUID) (bool, error) {
	n, err := s.CompletedCount(ctx, distributionID)
	return n > 0, err
}

func (s *Service) Stats(ctx context.Context, distributionID uuid.UUID) (distribution.Stats, error) {
	as, err := s.repo.ListAssignments(ctx, distributionID)
	if err != nil {
		return distribution.Stats{}, fmt.Errorf("distribution stats: %w", err)
	}
	return distribution.StatsOf(as), nil
}

// RefreshResponseCount recomputes and persists responseCount.
func (s *Service) RefreshResponseCount(ctx context.Context, distributionID uuid.UUID) (int, error) {
	n, err := s.repo.RefreshResponseCount(ctx, distributionID)
	if err != nil {
		return 0, fmt.Errorf("refresh response count: %w", err)
	}
	return n, nil
}

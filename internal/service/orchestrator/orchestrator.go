package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/event"
	"github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/metrics"
	portagent "github.com/alanyang/job-dispatch/internal/port/agent"
	portdist "github.com/alanyang/job-dispatch/internal/port/distribution"
	portbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
	portjob "github.com/alanyang/job-dispatch/internal/port/job"
	portlocker "github.com/alanyang/job-dispatch/internal/port/locker"
	portqueue "github.com/alanyang/job-dispatch/internal/port/queue"
	"github.com/alanyang/job-dispatch/internal/service/coordinator"
	"github.com/alanyang/job-dispatch/internal/service/scorer"
	"github.com/alanyang/job-dispatch/internal/service/selector"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
)

type Config struct {
	MaxAgentsPerJob int
	// Quorum is the number of completed legs that triggers selection.
	Quorum       int
	Strategy     selector.Strategy
	BatchSize    int
	PollInterval time.Duration
}

// Outcome is what processing did to one job.
type Outcome string

const (
	OutcomeDistributed Outcome = "distributed"
	OutcomeCompleted   Outcome = "completed"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeExpired     Outcome = "expired"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

type JobResult struct {
	JobID          uuid.UUID  `json:"job_id"`
	Outcome        Outcome    `json:"outcome"`
	DistributionID *uuid.UUID `json:"distribution_id,omitempty"`
	Agents         int        `json:"agents"`
	WinnerAgentID  *uuid.UUID `json:"winner_agent_id,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

type BatchResult struct {
	Results     []JobResult `json:"results"`
	Distributed int         `json:"distributed"`
	Completed   int         `json:"completed"`
	Cancelled   int         `json:"cancelled"`
	Expired     int         `json:"expired"`
	Skipped     int         `json:"skipped"`
	Failed      int         `json:"failed"`
}

func (b *BatchResult) tally() {
	for _, r := range b.Results {
		switch r.Outcome {
		case OutcomeDistributed:
			b.Distributed++
		case OutcomeCompleted:
			b.Completed++
		case OutcomeCancelled:
			b.Cancelled++
		case OutcomeExpired:
			b.Expired++
		case OutcomeSkipped:
			b.Skipped++
		case OutcomeFailed:
			b.Failed++
		}
	}
}

type SweepResult struct {
	Checked  int `json:"checked"`
	TimedOut int `json:"timed_out"`
	Resolved int `json:"resolved"`
	Expired  int `json:"expired"`
	Failed   int `json:"failed"`
}

// CallbackResult is the tracked leg after an agent callback, plus the selection it triggered.
type CallbackResult struct {
	Assignment distribution.Assignment `json:"assignment"`
	Selection  *selector.Selection     `json:"selection,omitempty"`
}

// Service drives jobs from Open to a resolved distribution.
// [SRP] It sequences scorer, coordinator, tracker and selector; none of them call each other upward.
// [DIP] Depends on ports and the core services only.
type Service struct {
	jobs        portjob.Repository
	candidates  portagent.CandidateReader
	dists       portdist.Repository
	coordinator *coordinator.Service
	tracker     *tracker.Service
	selector    *selector.Service
	locker      portlocker.AdvisoryLocker
	queue       portqueue.Queue
	bus         portbus.EventBus
	metrics     *metrics.Collector
	cfg         Config

	// inflight counts dispatches that were handed off and have not settled yet.
	inflight sync.WaitGroup
}

func NewService(
	jobs portjob.Repository,
	candidates portagent.CandidateReader,
	dists portdist.Repository,
	coord *coordinator.Service,
	tr *tracker.Service,
	sel *selector.Service,
	locker portlocker.AdvisoryLocker,
	queue portqueue.Queue,
	bus portbus.EventBus,
	m *metrics.Collector,
	cfg Config,
) *Service {
	if cfg.Quorum < 1 {
		cfg.Quorum = 1
	}
	if cfg.Strategy == "" {
		cfg.Strategy = selector.FirstCompleted
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Service{
		jobs:        jobs,
		candidates:  candidates,
		dists:       dists,
		coordinator: coord,
		tracker:     tr,
		selector:    sel,
		locker:      locker,
		queue:       queue,
		bus:         bus,
		metrics:     m,
		cfg:         cfg,
	}
}

// ProcessJob distributes one job and waits for its dispatch to settle or for ctx to end,
// whichever comes first. The dispatch itself is not bound to ctx and keeps running.
func (s *Service) ProcessJob(ctx context.Context, jobID uuid.UUID) (JobResult, error) {
	res, rec, err := s.open(ctx, jobID)
	if err != nil || rec == nil {
		return res, err
	}
	select {
	case settled := <-s.handOff(ctx, res, *rec):
		return settled, nil
	case <-ctx.Done():
		return res, nil
	}
}

// ProcessBatch opens every job in order, one at a time under the open lock, then hands each
// opened distribution to a background dispatch. It returns once the opens are done; a
// distributed job reports OutcomeDistributed. A failing job is reported in its own result only.
func (s *Service) ProcessBatch(ctx context.Context, jobIDs []uuid.UUID) BatchResult {
	results := make([]JobResult, len(jobIDs))
	recs := make([]*distribution.Record, len(jobIDs))
	for i, id := range jobIDs {
		res, rec, err := s.open(ctx, id)
		if err != nil {
			slog.ErrorContext(ctx, "failed to open distribution", "job_id", id, "error", err)
		}
		results[i], recs[i] = res, rec
	}
	for i, rec := range recs {
		if rec != nil {
			s.handOff(ctx, results[i], *rec)
		}
	}

	out := BatchResult{Results: results}
	out.tally()
	slog.InfoContext(ctx, "batch processed", "jobs", len(jobIDs),
		"distributed", out.Distributed, "cancelled", out.Cancelled, "expired", out.Expired,
		"skipped", out.Skipped, "failed", out.Failed)
	return out
}

// handOff dispatches rec on a tracked goroutine that outlives ctx. Agent calls are never
// aborted because the caller went away. The returned channel yields the settled result.
func (s *Service) handOff(ctx context.Context, res JobResult, rec distribution.Record) <-chan JobResult {
	done := make(chan JobResult, 1)
	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		settled, err := s.dispatch(bg, res, rec)
		if err != nil {
			slog.ErrorContext(bg, "failed to dispatch distribution",
				"job_id", rec.JobID, "distribution_id", rec.ID, "error", err)
			settled.Outcome, settled.Reason = OutcomeFailed, failureReason(err)
		}
		done <- settled
	}()
	return done
}

// Wait blocks until every handed-off dispatch has settled or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failureReason is the caller-facing reason for a failed job. Store and driver detail stays in
// the log; only validation messages, which are ours, are passed through.
func failureReason(err error) string {
	if errors.Is(err, apperr.ErrValidation) {
		return err.Error()
	}
	return apperr.Kind(err)
}

// ProcessPending runs ProcessBatch over the oldest Open jobs. It backs the manual trigger.
func (s *Service) ProcessPending(ctx context.Context) (BatchResult, error) {
	open := job.StatusOpen
	jobs, err := s.jobs.List(ctx, job.ListFilters{Status: &open, Limit: s.cfg.BatchSize, OldestFirst: true})
	if err != nil {
		return BatchResult{}, fmt.Errorf("list open jobs: %w", err)
	}
	ids := make([]uuid.UUID, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return s.ProcessBatch(ctx, ids), nil
}

// open scores the pool and opens a distribution for an Open job. rec is nil when nothing is
// left to dispatch. The lock keeps two opens from booking the same idle agent.
func (s *Service) open(ctx context.Context, jobID uuid.UUID) (res JobResult, rec *distribution.Record, err error) {
	res = JobResult{JobID: jobID}
	err = s.locker.WithLock(ctx, openLockKey, func(ctx context.Context) error {
		j, err := s.jobs.GetByID(ctx, jobID)
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if j.Status != job.StatusOpen {
			res.Outcome, res.Reason = OutcomeSkipped, "job is "+string(j.Status)
			return nil
		}

		now := time.Now().UTC()
		if j.Deadline != nil && !j.Deadline.After(now) {
			if err := s.expireJob(ctx, j.ID, job.StatusOpen); err != nil {
				return err
			}
			res.Outcome, res.Reason = OutcomeExpired, "deadline passed before distribution"
			return nil
		}
		if err := j.Validate(now); err != nil {
			if err := s.coordinator.CancelJob(ctx, j.ID, err.Error()); err != nil {
				return err
			}
			res.Outcome, res.Reason = OutcomeCancelled, err.Error()
			return nil
		}

		pool, err := s.candidates.ListCandidates(ctx, now.Add(-scorer.AvailabilityWindow))
		if err != nil {
			return fmt.Errorf("list candidates: %w", err)
		}
		ranked := scorer.Agents(scorer.Select(j, pool, s.cfg.MaxAgentsPerJob))
		if len(ranked) == 0 {
			const reason = "no eligible agents"
			if err := s.coordinator.CancelJob(ctx, j.ID, reason); err != nil {
				return err
			}
			res.Outcome, res.Reason = OutcomeCancelled, reason
			return nil
		}

		opened, err := s.coordinator.Open(ctx, j, ranked)
		if err != nil {
			return err
		}
		res.Outcome, res.Agents = OutcomeDistributed, opened.TotalAgents
		res.DistributionID = &opened.ID
		rec = &opened
		return nil
	})
	if err != nil {
		return JobResult{JobID: jobID, Outcome: OutcomeFailed, Reason: failureReason(err)}, nil, err
	}
	return res, rec, nil
}

func (s *Service) dispatch(ctx context.Context, res JobResult, rec distribution.Record) (JobResult, error) {
	onSettled := func(ctx context.Context, _ distribution.Assignment) {
		if _, err := s.maybeResolve(ctx, rec.ID); err != nil {
			slog.ErrorContext(ctx, "failed to resolve distribution", "distribution_id", rec.ID, "error", err)
		}
	}
	if err := s.coordinator.Dispatch(ctx, rec.ID, onSettled); err != nil {
		return res, err
	}

	// Selection may already have happened from a leg; this catches a quorum met by callbacks.
	bg := context.WithoutCancel(ctx)
	if _, err := s.maybeResolve(bg, rec.ID); err != nil {
		return res, err
	}
	latest, err := s.dists.GetByID(bg, rec.ID)
	if err != nil {
		return res, fmt.Errorf("reload distribution: %w", err)
	}
	if latest.Resolved() {
		res.Outcome = OutcomeCompleted
		res.WinnerAgentID = latest.WinningAgentID
	}
	return res, nil
}

// maybeResolve selects a winner once the quorum is met. first_completed resolves as soon as
// enough legs completed; best_scored also waits until no leg is still open. When every leg is
// terminal, any completion is enough.
func (s *Service) maybeResolve(ctx context.Context, distributionID uuid.UUID) (*selector.Selection, error) {
	st, err := s.tracker.Stats(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	open := st.Assigned + st.Working
	ready := st.Completed >= s.cfg.Quorum
	if s.cfg.Strategy == selector.BestScored && open > 0 {
		ready = false
	}
	if open == 0 && st.Completed > 0 {
		ready = true
	}
	if !ready {
		return nil, nil
	}
	sel, err := s.selector.SelectWinner(ctx, distributionID, s.cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return &sel, nil
}

// OnProgress records a progress report from an agent. An Assigned leg starts working.
func (s *Service) OnProgress(ctx context.Context, key distribution.Key, progress int) (distribution.Assignment, error) {
	return s.tracker.UpdateStatus(ctx, key, distribution.Patch{Status: distribution.StatusWorking, Progress: &progress})
}

// OnResult records a result submitted by an agent and resolves the distribution if that meets
// the quorum. A result for a leg that is already terminal changes nothing.
func (s *Service) OnResult(ctx context.Context, key distribution.Key, result string) (CallbackResult, error) {
	elapsed, err := s.elapsed(ctx, key)
	if err != nil {
		return CallbackResult{}, err
	}
	a, err := s.tracker.Completed(ctx, key, result, elapsed)
	if err != nil {
		return CallbackResult{}, err
	}
	return s.afterCallback(ctx, a)
}

// OnFailure records a failure reported by an agent.
func (s *Service) OnFailure(ctx context.Context, key distribution.Key, errMsg string) (CallbackResult, error) {
	elapsed, err := s.elapsed(ctx, key)
	if err != nil {
		return CallbackResult{}, err
	}
	a, err := s.tracker.Failed(ctx, key, errMsg, elapsed, 0)
	if err != nil {
		return CallbackResult{}, err
	}
	return s.afterCallback(ctx, a)
}

func (s *Service) afterCallback(ctx context.Context, a distribution.Assignment) (CallbackResult, error) {
	if _, err := s.tracker.RefreshResponseCount(ctx, a.DistributionID); err != nil {
		slog.ErrorContext(ctx, "failed to refresh response count", "distribution_id", a.DistributionID, "error", err)
	}
	sel, err := s.maybeResolve(ctx, a.DistributionID)
	if err != nil {
		return CallbackResult{Assignment: a}, err
	}
	return CallbackResult{Assignment: a, Selection: sel}, nil
}

func (s *Service) elapsed(ctx context.Context, key distribution.Key) (time.Duration, error) {
	a, err := s.tracker.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	from := a.AssignedAt
	if a.StartedAt != nil {
		from = *a.StartedAt
	}
	return time.Since(from), nil
}

// SweepTimeouts forces resolution of every unresolved distribution whose deadline is before now.
// Open legs time out; a distribution with a completed leg resolves first_completed, otherwise its
// job expires. Resolved distributions are never listed, so a second sweep changes nothing.
func (s *Service) SweepTimeouts(ctx context.Context, now time.Time) (SweepResult, error) {
	recs, err := s.dists.ListExpired(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list expired distributions: %w", err)
	}

	var res SweepResult
	for _, rec := range recs {
		res.Checked++
		err := s.locker.WithLock(ctx, distributionLockKey(rec.ID), func(ctx context.Context) error {
			return s.sweepOne(ctx, rec, &res)
		})
		if err != nil {
			res.Failed++
			slog.ErrorContext(ctx, "timeout sweep failed", "distribution_id", rec.ID, "error", err)
		}
	}
	s.metrics.SweepRun(res.Resolved + res.Expired)
	if res.Checked > 0 {
		slog.InfoContext(ctx, "timeout sweep finished", "checked", res.Checked, "timed_out", res.TimedOut,
			"resolved", res.Resolved, "expired", res.Expired, "failed", res.Failed)
	}
	return res, nil
}

func (s *Service) sweepOne(ctx context.Context, rec distribution.Record, res *SweepResult) error {
	legs, err := s.tracker.List(ctx, rec.ID)
	if err != nil {
		return err
	}
	completed := false
	for _, leg := range legs {
		switch leg.WorkStatus {
		case distribution.StatusCompleted:
			completed = true
		case distribution.StatusAssigned, distribution.StatusWorking:
			a, err := s.tracker.Timeout(ctx, leg.Key())
			if errors.Is(err, tracker.ErrStaleTransition) {
				completed = completed || a.WorkStatus == distribution.StatusCompleted
				continue
			}
			if err != nil {
				return err
			}
			res.TimedOut++
		}
	}
	if _, err := s.tracker.RefreshResponseCount(ctx, rec.ID); err != nil {
		slog.ErrorContext(ctx, "failed to refresh response count", "distribution_id", rec.ID, "error", err)
	}

	if completed {
		sel, err := s.selector.SelectWinner(ctx, rec.ID, selector.FirstCompleted)
		if err != nil {
			return err
		}
		if sel.Resolved {
			res.Resolved++
		}
		return nil
	}

	err = s.expireJob(ctx, rec.JobID, job.Unresolved()...)
	if errors.Is(err, apperr.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	res.Expired++
	return nil
}

// expireJob moves a job that ran out of time to Expired, guarded by from.
func (s *Service) expireJob(ctx context.Context, jobID uuid.UUID, from ...job.Status) error {
	if err := s.jobs.UpdateStatus(ctx, jobID, job.StatusExpired, from...); err != nil {
		return fmt.Errorf("expire job: %w", err)
	}
	s.metrics.JobOutcome(string(job.StatusExpired))
	if err := s.bus.Publish(ctx, event.New(event.TypeJobExpired, jobID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish JobExpired event", "job_id", jobID, "error", err)
	}
	slog.InfoContext(ctx, "job expired", "job_id", jobID)
	return nil
}

// Run consumes the intake queue until ctx is done. It wakes on every enqueue and at least once
// per poll interval.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := s.drain(ctx); err != nil {
			slog.ErrorContext(ctx, "intake worker failed to claim jobs", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.queue.Ready():
		case <-ticker.C:
		}
	}
}

func (s *Service) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		ids, err := s.queue.Claim(ctx, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		s.metrics.QueueDepth(s.queue.Len())
		if len(ids) == 0 {
			return nil
		}
		s.ProcessBatch(ctx, ids)
	}
	return nil
}

var openLockKey = lockKey("open", uuid.Nil)

func distributionLockKey(id uuid.UUID) int64 { return lockKey("distribution", id) }

// lockKey hashes (scope, id) to a stable int64 for pg_advisory_lock.
func lockKey(scope string, id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte("job-dispatch:" + scope))
	h.Write(id[:])
	return int64(h.Sum64())
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/agent"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/job"
	portagent "github.com/alanyang/job-dispatch/internal/port/agent"
	portdist "github.com/alanyang/job-dispatch/internal/port/distribution"
	portjob "github.com/alanyang/job-dispatch/internal/port/job"
)

var (
	_ portjob.Repository             = (*JobRepository)(nil)
	_ portagent.Repository           = (*AgentRepository)(nil)
	_ portagent.CandidateReader      = (*AgentRepository)(nil)
	_ portdist.Repository            = (*DistributionRepository)(nil)
	_ portdist.PerformanceRepository = (*DistributionRepository)(nil)
	_ portdist.LogRepository         = (*DistributionRepository)(nil)
)

type distributionRow struct {
	rec         distribution.Record
	assignments []distribution.Assignment
}

// Store is a process-local data store. Every repository it hands out shares one mutex, so
// multi-entity writes (Open, Resolve) are atomic exactly like a database transaction.
type Store struct {
	mu          sync.RWMutex
	jobs        map[uuid.UUID]job.Job
	agents      map[uuid.UUID]agent.Agent
	agentOrder  []uuid.UUID
	dists       map[uuid.UUID]*distributionRow
	distByJob   map[uuid.UUID]uuid.UUID
	performance map[uuid.UUID]distribution.Performance
	logs        []distribution.LogEntry

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs:        make(map[uuid.UUID]job.Job),
		agents:      make(map[uuid.UUID]agent.Agent),
		dists:       make(map[uuid.UUID]*distributionRow),
		distByJob:   make(map[uuid.UUID]uuid.UUID),
		performance: make(map[uuid.UUID]distribution.Performance),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Jobs() *JobRepository                   { return &JobRepository{s: s} }
func (s *Store) Agents() *AgentRepository               { return &AgentRepository{s: s} }
func (s *Store) Distributions() *DistributionRepository { return &DistributionRepository{s: s} }

// --- jobs ---

type JobRepository struct{ s *Store }

func (r *JobRepository) Create(_ context.Context, j job.Job) (job.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[j.ID]; ok {
		return job.Job{}, fmt.Errorf("create job %s: %w", j.ID, apperr.ErrConflict)
	}
	j = cloneJob(j)
	r.s.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (r *JobRepository) GetByID(_ context.Context, id uuid.UUID) (job.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return job.Job{}, fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	return cloneJob(j), nil
}

func (r *JobRepository) List(_ context.Context, filters job.ListFilters) ([]job.Job, error) {
	r.s.mu.RLock()
	out := make([]job.Job, 0, len(r.s.jobs))
	for _, j := range r.s.jobs {
		if filters.Status != nil && j.Status != *filters.Status {
			continue
		}
		out = append(out, cloneJob(j))
	}
	r.s.mu.RUnlock()

	sort.SliceStable(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID.String() < out[k].ID.String()
		}
		if filters.OldestFirst {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (r *JobRepository) UpdateStatus(_ context.Context, id uuid.UUID, to job.Status, from ...job.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.updateJobStatusLocked(id, to, from...)
}

func (r *JobRepository) CountByStatus(_ context.Context) (map[job.Status]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[job.Status]int)
	for _, j := range r.s.jobs {
		out[j.Status]++
	}
	return out, nil
}

func (s *Store) updateJobStatusLocked(id uuid.UUID, to job.Status, from ...job.Status) error {
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	if len(from) > 0 && !containsStatus(from, j.Status) {
		return fmt.Errorf("job %s is %s, want one of %v: %w", id, j.Status, from, apperr.ErrConflict)
	}
	j.Status = to
	j.UpdatedAt = s.now()
	s.jobs[id] = j
	return nil
}

// --- agents ---

type AgentRepository struct{ s *Store }

func (r *AgentRepository) Create(_ context.Context, a agent.Agent) (agent.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.agents[a.ID]; ok {
		return agent.Agent{}, fmt.Errorf("create agent %s: %w", a.ID, apperr.ErrConflict)
	}
	a = cloneAgent(a)
	r.s.agents[a.ID] = a
	r.s.agentOrder = append(r.s.agentOrder, a.ID)
	return cloneAgent(a), nil
}

func (r *AgentRepository) GetByID(_ context.Context, id uuid.UUID) (agent.Agent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.agents[id]
	if !ok {
		return agent.Agent{}, fmt.Errorf("agent %s: %w", id, apperr.ErrNotFound)
	}
	return cloneAgent(a), nil
}

func (r *AgentRepository) List(_ context.Context, filters agent.ListFilters) ([]agent.Agent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]agent.Agent, 0, len(r.s.agentOrder))
	for _, id := range r.s.agentOrder {
		a := r.s.agents[id]
		if filters.IsActive != nil && a.IsActive != *filters.IsActive {
			continue
		}
		if filters.AutoAccept != nil && a.AutoAccept != *filters.AutoAccept {
			continue
		}
		out = append(out, cloneAgent(a))
	}
	return out, nil
}

func (r *AgentRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, apperr.ErrNotFound)
	}
	a.IsActive = active
	r.s.agents[id] = a
	return nil
}

func (r *AgentRepository) UpdateStats(_ context.Context, id uuid.UUID, totalCompleted int, successRate float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, apperr.ErrNotFound)
	}
	a.TotalJobsCompleted = totalCompleted
	a.SuccessRate = successRate
	r.s.agents[id] = a
	return nil
}

// ListCandidates returns active auto-accepting agents in registration order.
func (r *AgentRepository) ListCandidates(_ context.Context, since time.Time) ([]agent.Candidate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	active := make(map[uuid.UUID]int)
	recent := make(map[uuid.UUID]int)
	for _, row := range r.s.dists {
		for _, a := range row.assignments {
			if !a.WorkStatus.IsTerminal() {
				active[a.AgentID]++
			}
			if !a.AssignedAt.Before(since) {
				recent[a.AgentID]++
			}
		}
	}

	out := make([]agent.Candidate, 0, len(r.s.agentOrder))
	for _, id := range r.s.agentOrder {
		a := r.s.agents[id]
		if !a.IsActive || !a.AutoAccept {
			continue
		}
		out = append(out, agent.Candidate{
			Agent:             cloneAgent(a),
			ActiveAssignments: active[id],
			RecentAssignments: recent[id],
		})
	}
	return out, nil
}

// --- distributions ---

type DistributionRepository struct{ s *Store }

func (r *DistributionRepository) Open(_ context.Context, rec distribution.Record, assignments []distribution.Assignment) (distribution.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.jobs[rec.JobID]
	if !ok {
		return distribution.Record{}, fmt.Errorf("open distribution: job %s: %w", rec.JobID, apperr.ErrNotFound)
	}
	if _, ok := r.s.distByJob[rec.JobID]; ok {
		return distribution.Record{}, fmt.Errorf("open distribution: job %s already distributed: %w", rec.JobID, apperr.ErrConflict)
	}
	if j.Status != job.StatusOpen {
		return distribution.Record{}, fmt.Errorf("open distribution: job %s is %s: %w", rec.JobID, j.Status, apperr.ErrConflict)
	}

	seen := make(map[uuid.UUID]struct{}, len(assignments))
	for _, a := range assignments {
		if _, dup := seen[a.AgentID]; dup {
			return distribution.Record{}, fmt.Errorf("open distribution: agent %s listed twice: %w", a.AgentID, apperr.ErrConflict)
		}
		seen[a.AgentID] = struct{}{}
		if r.s.hasOpenAssignmentLocked(a.AgentID) {
			return distribution.Record{}, fmt.Errorf("open distribution: agent %s already busy: %w", a.AgentID, apperr.ErrConflict)
		}
	}

	rec.TotalAgents = len(assignments)
	rec.AssignedCount = len(assignments)
	rec.ResponseCount = 0
	rec = cloneRecord(rec)
	row := &distributionRow{rec: rec, assignments: make([]distribution.Assignment, len(assignments))}
	for i, a := range assignments {
		a.DistributionID = rec.ID
		row.assignments[i] = cloneAssignment(a)
	}

	r.s.dists[rec.ID] = row
	r.s.distByJob[rec.JobID] = rec.ID
	j.Status = job.StatusDistributed
	j.UpdatedAt = r.s.now()
	r.s.jobs[j.ID] = j
	return cloneRecord(rec), nil
}

func (s *Store) hasOpenAssignmentLocked(agentID uuid.UUID) bool {
	for _, row := range s.dists {
		for _, a := range row.assignments {
			if a.AgentID == agentID && !a.WorkStatus.IsTerminal() {
				return true
			}
		}
	}
	return false
}

func (r *DistributionRepository) GetByID(_ context.Context, id uuid.UUID) (distribution.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.dists[id]
	if !ok {
		return distribution.Record{}, fmt.Errorf("distribution %s: %w", id, apperr.ErrNotFound)
	}
	return cloneRecord(row.rec), nil
}

func (r *DistributionRepository) GetByJobID(_ context.Context, jobID uuid.UUID) (distribution.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.distByJob[jobID]
	if !ok {
		return distribution.Record{}, fmt.Errorf("distribution for job %s: %w", jobID, apperr.ErrNotFound)
	}
	return cloneRecord(r.s.dists[id].rec), nil
}

func (r *DistributionRepository) ListAssignments(_ context.Context, distributionID uuid.UUID) ([]distribution.Assignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	row, ok := r.s.dists[distributionID]
	if !ok {
		return nil, fmt.Errorf("distribution %s: %w", distributionID, apperr.ErrNotFound)
	}
	out := make([]distribution.Assignment, len(row.assignments))
	for i, a := range row.assignments {
		out[i] = cloneAssignment(a)
	}
	return out, nil
}

func (r *DistributionRepository) GetAssignment(_ context.Context, key distribution.Key) (distribution.Assignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, _, err := r.s.findAssignmentLocked(key)
	if err != nil {
		return distribution.Assignment{}, err
	}
	return cloneAssignment(*a), nil
}

func (s *Store) findAssignmentLocked(key distribution.Key) (*distribution.Assignment, *distributionRow, error) {
	row, ok := s.dists[key.DistributionID]
	if ok {
		for i := range row.assignments {
			if row.assignments[i].AgentID == key.AgentID {
				return &row.assignments[i], row, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("assignment %s: %w", key.TaskID(), apperr.ErrNotFound)
}

func (r *DistributionRepository) UpdateAssignment(_ context.Context, key distribution.Key, from []distribution.WorkStatus, patch distribution.Patch) (distribution.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, _, err := r.s.findAssignmentLocked(key)
	if err != nil {
		return distribution.Assignment{}, err
	}
	if len(from) > 0 && !containsWorkStatus(from, a.WorkStatus) {
		return distribution.Assignment{}, fmt.Errorf("assignment %s is %s: %w", key.TaskID(), a.WorkStatus, apperr.ErrConflict)
	}
	a.Apply(patch, r.s.now())
	return cloneAssignment(*a), nil
}

func (r *DistributionRepository) RefreshResponseCount(_ context.Context, distributionID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.dists[distributionID]
	if !ok {
		return 0, fmt.Errorf("distribution %s: %w", distributionID, apperr.ErrNotFound)
	}
	if n := distribution.ResponseCount(row.assignments); n > row.rec.ResponseCount {
		row.rec.ResponseCount = n
	}
	return row.rec.ResponseCount, nil
}

func (r *DistributionRepository) Resolve(_ context.Context, res distribution.Resolution) ([]distribution.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.dists[res.DistributionID]
	if !ok {
		return nil, fmt.Errorf("resolve: distribution %s: %w", res.DistributionID, apperr.ErrNotFound)
	}
	if row.rec.Resolved() {
		return nil, fmt.Errorf("resolve: distribution %s already has a winner: %w", res.DistributionID, apperr.ErrConflict)
	}
	winner, _, err := r.s.findAssignmentLocked(distribution.Key{DistributionID: res.DistributionID, AgentID: res.WinnerAgentID})
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if winner.WorkStatus != distribution.StatusCompleted {
		return nil, fmt.Errorf("resolve: winner %s is %s: %w", res.WinnerAgentID, winner.WorkStatus, apperr.ErrConflict)
	}
	j := r.s.jobs[row.rec.JobID]
	if !containsStatus(job.Unresolved(), j.Status) {
		return nil, fmt.Errorf("resolve: job %s is %s: %w", j.ID, j.Status, apperr.ErrConflict)
	}

	// All guards passed; nothing below can fail.
	id := res.WinnerAgentID
	row.rec.WinningAgentID = &id
	row.rec.WinningAgentName = res.WinnerName
	if err := r.s.updateJobStatusLocked(j.ID, job.StatusCompleted); err != nil {
		return nil, err
	}

	at := res.At
	if at.IsZero() {
		at = r.s.now()
	}
	msg := res.Message
	patch := distribution.Patch{Status: distribution.StatusCancelled, Error: &msg}
	var cancelled []distribution.Assignment
	for i := range row.assignments {
		a := &row.assignments[i]
		if a.AgentID == res.WinnerAgentID || a.WorkStatus.IsTerminal() {
			continue
		}
		a.Apply(patch, at)
		cancelled = append(cancelled, cloneAssignment(*a))
	}
	return cancelled, nil
}

func (r *DistributionRepository) ListExpired(_ context.Context, now time.Time) ([]distribution.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []distribution.Record
	for _, row := range r.s.dists {
		if row.rec.Resolved() || !row.rec.Deadline.Before(now) {
			continue
		}
		if !containsStatus(job.Unresolved(), r.s.jobs[row.rec.JobID].Status) {
			continue
		}
		out = append(out, cloneRecord(row.rec))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Deadline.Before(out[k].Deadline) })
	return out, nil
}

func (r *DistributionRepository) CountAssignmentsByStatus(_ context.Context) (map[distribution.WorkStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[distribution.WorkStatus]int)
	for _, row := range r.s.dists {
		for _, a := range row.assignments {
			out[a.WorkStatus]++
		}
	}
	return out, nil
}

// --- performance ---

func (r *DistributionRepository) RecordOutcome(_ context.Context, agentID uuid.UUID, success bool, executionTimeMs int64) (distribution.Performance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.performance[agentID]
	if !ok {
		p = distribution.Performance{AgentID: agentID}
	}
	p.Record(success, executionTimeMs, r.s.now())
	r.s.performance[agentID] = p
	return p, nil
}

func (r *DistributionRepository) GetPerformance(_ context.Context, agentID uuid.UUID) (distribution.Performance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.performance[agentID]
	if !ok {
		return distribution.Performance{}, fmt.Errorf("performance for agent %s: %w", agentID, apperr.ErrNotFound)
	}
	return p, nil
}

func (r *DistributionRepository) TopPerformers(_ context.Context, limit int) ([]distribution.Performance, error) {
	r.s.mu.RLock()
	out := make([]distribution.Performance, 0, len(r.s.performance))
	for _, p := range r.s.performance {
		out = append(out, p)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].SuccessRate != out[k].SuccessRate {
			return out[i].SuccessRate > out[k].SuccessRate
		}
		if out[i].CompletedJobs != out[k].CompletedJobs {
			return out[i].CompletedJobs > out[k].CompletedJobs
		}
		return out[i].AgentID.String() < out[k].AgentID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- execution log ---

func (r *DistributionRepository) AppendLog(_ context.Context, e distribution.LogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.logs = append(r.s.logs, e)
	return nil
}

func (r *DistributionRepository) ListLogs(_ context.Context, jobID uuid.UUID) ([]distribution.LogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []distribution.LogEntry
	for _, e := range r.s.logs {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- helpers ---

func containsStatus(set []job.Status, s job.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsWorkStatus(set []distribution.WorkStatus, s distribution.WorkStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func cloneJob(j job.Job) job.Job {
	j.Tags = append([]string(nil), j.Tags...)
	if j.MaxBudget != nil {
		b := *j.MaxBudget
		j.MaxBudget = &b
	}
	if j.Deadline != nil {
		d := *j.Deadline
		j.Deadline = &d
	}
	return j
}

func cloneAgent(a agent.Agent) agent.Agent {
	a.Tags = append([]string(nil), a.Tags...)
	return a
}

func cloneRecord(r distribution.Record) distribution.Record {
	r.Criteria.Tags = append([]string(nil), r.Criteria.Tags...)
	if r.Criteria.MaxBudget != nil {
		b := *r.Criteria.MaxBudget
		r.Criteria.MaxBudget = &b
	}
	if r.WinningAgentID != nil {
		id := *r.WinningAgentID
		r.WinningAgentID = &id
	}
	return r
}

func cloneAssignment(a distribution.Assignment) distribution.Assignment {
	if a.StartedAt != nil {
		t := *a.StartedAt
		a.StartedAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		a.CompletedAt = &t
	}
	return a
}

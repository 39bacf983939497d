package distribution

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
)

// CancelledMessage is stamped on every losing assignment when a winner is selected.
const CancelledMessage = "cancelled: another agent's result was selected"

// TimeoutMessage is stamped on assignments still open when the distribution deadline passes.
const TimeoutMessage = "timed out: distribution deadline exceeded"

// MatchCriteria is the frozen copy of a job's requirements at distribution-open time.
type MatchCriteria struct {
	Tags           []string    `json:"tags"`
	Category       string      `json:"category"`
	SkillLevel     skill.Level `json:"skill_level"`
	MaxBudget      *float64    `json:"max_budget,omitempty"`
	IsActive       bool        `json:"is_active"`
	AutoAcceptJobs bool        `json:"auto_accept_jobs"`
}

// CriteriaFor snapshots j. Slices and pointers are copied so later job mutations never leak in.
func CriteriaFor(j job.Job) MatchCriteria {
	tags := make([]string, len(j.Tags))
	copy(tags, j.Tags)
	var budget *float64
	if j.MaxBudget != nil {
		b := *j.MaxBudget
		budget = &b
	}
	return MatchCriteria{
		Tags:           tags,
		Category:       j.Category,
		SkillLevel:     j.SkillLevel,
		MaxBudget:      budget,
		IsActive:       true,
		AutoAcceptJobs: true,
	}
}

// Record is the single distribution of one job.
type Record struct {
	ID               uuid.UUID     `json:"id"`
	JobID            uuid.UUID     `json:"job_id"`
	JobName          string        `json:"job_name"`
	Criteria         MatchCriteria `json:"criteria"`
	TotalAgents      int           `json:"total_agents"`
	AssignedCount    int           `json:"assigned_count"`
	ResponseCount    int           `json:"response_count"`
	WinningAgentID   *uuid.UUID    `json:"winning_agent_id,omitempty"`
	WinningAgentName string        `json:"winning_agent_name,omitempty"`
	Deadline         time.Time     `json:"deadline"`
	CreatedAt        time.Time     `json:"created_at"`
}

// New builds a record for j offered to agentCount agents. The deadline is the job's own
// deadline when set, otherwise now + fallback.
func New(j job.Job, agentCount int, fallback time.Duration) Record {
	now := time.Now().UTC()
	deadline := now.Add(fallback)
	if j.Deadline != nil {
		deadline = j.Deadline.UTC()
	}
	return Record{
		ID:            uuid.New(),
		JobID:         j.ID,
		JobName:       j.Title,
		Criteria:      CriteriaFor(j),
		TotalAgents:   agentCount,
		AssignedCount: agentCount,
		Deadline:      deadline,
		CreatedAt:     now,
	}
}

func (r *Record) Resolved() bool { return r.WinningAgentID != nil }

// Key is the composite identity of an assignment.
type Key struct {
	DistributionID uuid.UUID `json:"distribution_id"`
	AgentID        uuid.UUID `json:"agent_id"`
}

// TaskID is the identifier sent to agents and used for remote cancellation.
func (k Key) TaskID() string { return k.DistributionID.String() + ":" + k.AgentID.String() }

// Assignment is the per-agent leg of a distribution.
type Assignment struct {
	DistributionID  uuid.UUID  `json:"distribution_id"`
	AgentID         uuid.UUID  `json:"agent_id"`
	AgentName       string     `json:"agent_name"`
	AgentAddress    string     `json:"agent_address"`
	WorkStatus      WorkStatus `json:"work_status"`
	AssignedAt      time.Time  `json:"assigned_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Progress        int        `json:"progress"`
	ExecutionResult string     `json:"execution_result,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	RetryCount      int        `json:"retry_count"`
}

func (a *Assignment) Key() Key { return Key{DistributionID: a.DistributionID, AgentID: a.AgentID} }

// NewAssignment creates the Assigned leg for one agent. assignedAt is shared across a distribution
// and the input order is preserved by the stores, so listing order is stable.
func NewAssignment(distributionID, agentID uuid.UUID, agentName, address string, assignedAt time.Time) Assignment {
	return Assignment{
		DistributionID: distributionID,
		AgentID:        agentID,
		AgentName:      agentName,
		AgentAddress:   address,
		WorkStatus:     StatusAssigned,
		AssignedAt:     assignedAt,
	}
}

// Patch is a partial update applied by a tracker transition.
type Patch struct {
	Status          WorkStatus
	Progress        *int
	Result          *string
	Error           *string
	ExecutionTimeMs *int64
	RetryCount      *int
}

// Apply mutates a according to p. Entering Working from Assigned stamps StartedAt; entering a
// terminal state stamps CompletedAt and, for Completed, forces progress to 100.
func (a *Assignment) Apply(p Patch, now time.Time) {
	if p.Status != "" && p.Status != a.WorkStatus {
		if p.Status == StatusWorking && a.StartedAt == nil {
			t := now
			a.StartedAt = &t
		}
		if p.Status.IsTerminal() {
			t := now
			a.CompletedAt = &t
		}
		a.WorkStatus = p.Status
	}
	if p.Progress != nil {
		a.Progress = clampProgress(*p.Progress)
	}
	if a.WorkStatus == StatusCompleted {
		a.Progress = 100
	}
	if p.Result != nil {
		a.ExecutionResult = *p.Result
	}
	if p.Error != nil {
		a.ErrorMessage = *p.Error
	}
	if p.ExecutionTimeMs != nil {
		a.ExecutionTimeMs = *p.ExecutionTimeMs
	}
	if p.RetryCount != nil {
		a.RetryCount = *p.RetryCount
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ResponseCount counts assignments that have ever started. It never decreases: a later
// Cancelled or Timeout keeps StartedAt, and a leg cancelled straight from Assigned never counts.
func ResponseCount(assignments []Assignment) int {
	n := 0
	for _, a := range assignments {
		if a.StartedAt != nil {
			n++
		}
	}
	return n
}

// Stats counts the assignments of one distribution by status.
type Stats struct {
	Total     int `json:"total"`
	Assigned  int `json:"assigned"`
	Working   int `json:"working"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Timeout   int `json:"timeout"`
}

func StatsOf(assignments []Assignment) Stats {
	s := Stats{Total: len(assignments)}
	for _, a := range assignments {
		switch a.WorkStatus {
		case StatusAssigned:
			s.Assigned++
		case StatusWorking:
			s.Working++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		case StatusTimeout:
			s.Timeout++
		}
	}
	return s
}

// Resolution is the atomic close of a distribution: winner recorded, job completed,
// every other open leg cancelled.
type Resolution struct {
	DistributionID uuid.UUID
	WinnerAgentID  uuid.UUID
	WinnerName     string
	Message        string
	At             time.Time
}

package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
)

type Status string

const (
	StatusOpen        Status = "open"
	StatusDistributed Status = "distributed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusExpired     Status = "expired"
)

// Distributed → Completed is allowed because a winner can be selected from an agent
// callback before every dispatch call has settled. Open → Expired covers a deadline that passed
// while the job waited in the queue.
var validTransitions = map[Status][]Status{
	StatusOpen:        {StatusDistributed, StatusCancelled, StatusExpired},
	StatusDistributed: {StatusInProgress, StatusCompleted, StatusCancelled, StatusExpired},
	StatusInProgress:  {StatusCompleted, StatusCancelled, StatusExpired},
	StatusCompleted:   {},
	StatusCancelled:   {},
	StatusExpired:     {},
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// Unresolved lists the statuses of a job that has a distribution but no outcome yet.
func Unresolved() []Status {
	return []Status{StatusDistributed, StatusInProgress}
}

type Job struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Tags        []string    `json:"tags"`
	SkillLevel  skill.Level `json:"skill_level"`
	MaxBudget   *float64    `json:"max_budget,omitempty"`
	Deadline    *time.Time  `json:"deadline,omitempty"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func New(title, description, category string, tags []string, level skill.Level, maxBudget *float64, deadline *time.Time) Job {
	now := time.Now().UTC()
	if tags == nil {
		tags = []string{}
	}
	return Job{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Category:    category,
		Tags:        normalizeTags(tags),
		SkillLevel:  level,
		MaxBudget:   maxBudget,
		Deadline:    deadline,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks structural completeness only; content is never inspected.
func (j Job) Validate(now time.Time) error {
	switch {
	case j.ID == uuid.Nil:
		return fmt.Errorf("%w: job id is required", apperr.ErrValidation)
	case strings.TrimSpace(j.Title) == "":
		return fmt.Errorf("%w: title is required", apperr.ErrValidation)
	case strings.TrimSpace(j.Category) == "":
		return fmt.Errorf("%w: category is required", apperr.ErrValidation)
	case !j.SkillLevel.Known():
		return fmt.Errorf("%w: unknown skill level %q", apperr.ErrValidation, j.SkillLevel)
	case j.MaxBudget != nil && *j.MaxBudget < 0:
		return fmt.Errorf("%w: max budget must not be negative", apperr.ErrValidation)
	case j.Deadline != nil && !j.Deadline.After(now):
		return fmt.Errorf("%w: deadline must be in the future", apperr.ErrValidation)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// NormalizeTags lower-cases, trims and de-duplicates tags, preserving order.
func NormalizeTags(tags []string) []string { return normalizeTags(tags) }

type ListFilters struct {
	Status      *Status
	Limit       int
	OldestFirst bool // ORDER BY created_at ASC (default is DESC)
}

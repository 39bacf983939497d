package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
)

// Agent is long-lived reference data. The dispatch core only reads it and
// mirrors performance counters onto it.
type Agent struct {
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	Tags               []string    `json:"tags"`
	Skill              skill.Level `json:"skill"`
	Reputation         float64     `json:"reputation"`
	SuccessRate        float64     `json:"success_rate"`
	TotalJobsCompleted int         `json:"total_jobs_completed"`
	IsActive           bool        `json:"is_active"`
	AutoAccept         bool        `json:"auto_accept"`
	Address            string      `json:"address"`
	IsFree             bool        `json:"is_free"`
	Price              float64     `json:"price"`
	CreatedAt          time.Time   `json:"created_at"`
}

func New(name, address string, tags []string, level skill.Level) Agent {
	return Agent{
		ID:         uuid.New(),
		Name:       name,
		Tags:       job.NormalizeTags(tags),
		Skill:      level,
		IsActive:   true,
		AutoAccept: true,
		Address:    address,
		IsFree:     true,
		CreatedAt:  time.Now().UTC(),
	}
}

func (a *Agent) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TagOverlap counts how many of the required tags the agent carries.
func (a *Agent) TagOverlap(required []string) int {
	n := 0
	for _, req := range required {
		if a.HasTag(req) {
			n++
		}
	}
	return n
}

// Affordable reports whether the agent fits a job budget. A nil budget means no limit.
func (a *Agent) Affordable(budget *float64) bool {
	if budget == nil || a.IsFree {
		return true
	}
	return a.Price <= *budget
}

// Candidate is an agent plus the assignment counts the scorer needs.
type Candidate struct {
	Agent             Agent `json:"agent"`
	ActiveAssignments int   `json:"active_assignments"` // assigned or working, across all distributions
	RecentAssignments int   `json:"recent_assignments"` // created in the trailing availability window
}

type ListFilters struct {
	IsActive   *bool
	AutoAccept *bool
}

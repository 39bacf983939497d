// Package scorer ranks the live agent pool against a job's requirements.
// It is pure: no I/O, no logging.
package scorer

import (
	"math"
	"sort"
	"time"

	"github.com/alanyang/job-dispatch/internal/domain/agent"
	"github.com/alanyang/job-dispatch/internal/domain/job"
)

const (
	WeightSkill        = 0.35
	WeightReputation   = 0.25
	WeightSuccessRate  = 0.25
	WeightAvailability = 0.15

	exactSkillBonus  = 0.20
	oneTierUpBonus   = 0.10
	maxReputation    = 5.0
	DefaultMaxAgents = 3
)

// AvailabilityWindow is the trailing period whose assignment count feeds the availability factor.
const AvailabilityWindow = 7 * 24 * time.Hour

// AgentScore is the composite suitability of one candidate plus its factor breakdown.
type AgentScore struct {
	Candidate    agent.Candidate `json:"candidate"`
	Total        float64         `json:"total"`
	SkillMatch   float64         `json:"skill_match"`
	Reputation   float64         `json:"reputation"`
	SuccessRate  float64         `json:"success_rate"`
	Availability float64         `json:"availability"`
}

// Eligible reports whether c passes every filter rule for j.
func Eligible(j job.Job, c agent.Candidate) bool {
	a := c.Agent
	switch {
	case !a.IsActive, !a.AutoAccept:
		return false
	case c.ActiveAssignments > 0:
		return false
	case !a.Skill.Satisfies(j.SkillLevel):
		return false
	case len(j.Tags) > 0 && a.TagOverlap(j.Tags) == 0:
		return false
	case !a.Affordable(j.MaxBudget):
		return false
	}
	return true
}

// Match returns the eligible candidates in their original order.
func Match(j job.Job, pool []agent.Candidate) []agent.Candidate {
	out := make([]agent.Candidate, 0, len(pool))
	for _, c := range pool {
		if Eligible(j, c) {
			out = append(out, c)
		}
	}
	return out
}

// Score computes the weighted suitability of c for j. It does not apply the filter.
func Score(j job.Job, c agent.Candidate) AgentScore {
	s := AgentScore{
		Candidate:    c,
		SkillMatch:   skillMatch(j, c.Agent),
		Reputation:   math.Min(c.Agent.Reputation/maxReputation, 1.0),
		SuccessRate:  c.Agent.SuccessRate,
		Availability: Availability(c.RecentAssignments),
	}
	s.Total = WeightSkill*s.SkillMatch +
		WeightReputation*s.Reputation +
		WeightSuccessRate*s.SuccessRate +
		WeightAvailability*s.Availability
	return s
}

func skillMatch(j job.Job, a agent.Agent) float64 {
	m := 1.0
	if len(j.Tags) > 0 {
		m = float64(a.TagOverlap(j.Tags)) / float64(len(j.Tags))
	}
	have, want := a.Skill.Index(), j.SkillLevel.Index()
	if have >= 0 && want >= 0 {
		switch have - want {
		case 0:
			m += exactSkillBonus
		case 1:
			m += oneTierUpBonus
		}
	}
	return math.Min(m, 1.0)
}

// Availability steps down with the number of assignments in the trailing window.
func Availability(recent int) float64 {
	switch {
	case recent <= 0:
		return 1.0
	case recent <= 3:
		return 0.8
	case recent <= 6:
		return 0.6
	case recent <= 10:
		return 0.4
	}
	return 0.2
}

// Rank orders scores by descending total. Equal totals keep their input order.
func Rank(scores []AgentScore) []AgentScore {
	out := make([]AgentScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, k int) bool { return out[i].Total > out[k].Total })
	return out
}

// Select filters, scores and ranks pool, keeping at most max agents.
// A non-positive max falls back to DefaultMaxAgents.
func Select(j job.Job, pool []agent.Candidate, max int) []AgentScore {
	if max <= 0 {
		max = DefaultMaxAgents
	}
	matched := Match(j, pool)
	scores := make([]AgentScore, len(matched))
	for i, c := range matched {
		scores[i] = Score(j, c)
	}
	ranked := Rank(scores)
	if len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

// Agents unwraps ranked scores into agents, preserving order.
func Agents(scores []AgentScore) []agent.Agent {
	out := make([]agent.Agent, len(scores))
	for i, s := range scores {
		out[i] = s.Candidate.Agent
	}
	return out
}

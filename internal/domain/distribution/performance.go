package distribution

import (
	"time"

	"github.com/google/uuid"
)

// Performance aggregates an agent's terminal outcomes across all distributions.
type Performance struct {
	AgentID            uuid.UUID `json:"agent_id"`
	TotalJobs          int       `json:"total_jobs"`
	CompletedJobs      int       `json:"completed_jobs"`
	FailedJobs         int       `json:"failed_jobs"`
	AvgExecutionTimeMs float64   `json:"avg_execution_time_ms"`
	SuccessRate        float64   `json:"success_rate"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Record folds one outcome in. The average covers successful completions only:
// newAvg = (oldAvg*oldCompleted + t) / newCompleted.
func (p *Performance) Record(success bool, executionTimeMs int64, now time.Time) {
	p.TotalJobs++
	if success {
		old := float64(p.CompletedJobs)
		p.CompletedJobs++
		p.AvgExecutionTimeMs = (p.AvgExecutionTimeMs*old + float64(executionTimeMs)) / float64(p.CompletedJobs)
	} else {
		p.FailedJobs++
	}
	p.SuccessRate = float64(p.CompletedJobs) / float64(p.TotalJobs)
	p.UpdatedAt = now
}

// LogEntry is an append-only audit row.
type LogEntry struct {
	ID             uuid.UUID      `json:"id"`
	JobID          uuid.UUID      `json:"job_id"`
	DistributionID uuid.UUID      `json:"distribution_id"`
	AgentID        uuid.UUID      `json:"agent_id"`
	EventType      string         `json:"event_type"`
	Payload        map[string]any `json:"payload,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

func NewLogEntry(jobID, distributionID, agentID uuid.UUID, eventType string, payload map[string]any) LogEntry {
	return LogEntry{
		ID:             uuid.New(),
		JobID:          jobID,
		DistributionID: distributionID,
		AgentID:        agentID,
		EventType:      eventType,
		Payload:        payload,
		Timestamp:      time.Now().UTC(),
	}
}

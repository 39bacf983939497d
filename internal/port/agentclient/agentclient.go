package agentclient

import (
	"context"
	"time"
)

// Payload is the job content sent to an agent endpoint.
type Payload struct {
	TaskID         string     `json:"task_id"`
	JobID          string     `json:"job_id"`
	DistributionID string     `json:"distribution_id"`
	AgentID        string     `json:"agent_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	Tags           []string   `json:"tags"`
	SkillLevel     string     `json:"skill_level"`
	MaxBudget      *float64   `json:"max_budget,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

// RetryPolicy bounds the attempts of one Call: up to MaxRetries retries spaced BaseDelay,
// BaseDelay*Multiplier, ... apart. A nil Retryable uses the client default.
type RetryPolicy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	Multiplier     float64
	RequestTimeout time.Duration
	Retryable      func(error) bool
}

// AgentResponse is the outcome of one Call after retries.
type AgentResponse struct {
	Success    bool          `json:"success"`
	Result     string        `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Attempts   int           `json:"attempts"`
	Elapsed    time.Duration `json:"elapsed"`
}

type HealthStatus struct {
	IsHealthy      bool   `json:"is_healthy"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// AgentLoad is the optional load report of an agent's /status endpoint.
type AgentLoad struct {
	ActiveTasks int `json:"active_tasks"`
	Capacity    int `json:"capacity"`
}

// Client performs remote calls against agent endpoints. It holds no per-agent state.
type Client interface {
	// Call returns a non-nil error only when ctx is done; remote failures are reported in AgentResponse.
	Call(ctx context.Context, address string, payload Payload, policy RetryPolicy) (AgentResponse, error)
	HealthCheck(ctx context.Context, address string) HealthStatus
	Cancel(ctx context.Context, address, taskID string) bool
	Status(ctx context.Context, address string) (AgentLoad, error)
}

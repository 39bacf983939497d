package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/alanyang/job-dispatch/internal/port/agentclient"
)

// AgentBehavior scripts how a fake agent answers Call.
type AgentBehavior struct {
	Delay  time.Duration
	Result string
	Err    string
}

// FakeAgentClient is a test-double for agentclient.Client keyed by agent address.
// It records every call with a mutex so it is safe for concurrent use.
type FakeAgentClient struct {
	mu        sync.Mutex
	behaviors map[string]AgentBehavior
	unhealthy map[string]bool
	calls     []agentclient.Payload
	cancelled []string
}

var _ agentclient.Client = (*FakeAgentClient)(nil)

func NewFakeAgentClient() *FakeAgentClient {
	return &FakeAgentClient{
		behaviors: make(map[string]AgentBehavior),
		unhealthy: make(map[string]bool),
	}
}

func (c *FakeAgentClient) Script(address string, b AgentBehavior) {
	c.mu.Lock()
	c.behaviors[address] = b
	c.mu.Unlock()
}

func (c *FakeAgentClient) SetUnhealthy(address string) {
	c.mu.Lock()
	c.unhealthy[address] = true
	c.mu.Unlock()
}

func (c *FakeAgentClient) Call(ctx context.Context, address string, payload agentclient.Payload, _ agentclient.RetryPolicy) (agentclient.AgentResponse, error) {
	c.mu.Lock()
	b := c.behaviors[address]
	c.calls = append(c.calls, payload)
	c.mu.Unlock()

	if b.Delay > 0 {
		t := time.NewTimer(b.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return agentclient.AgentResponse{Error: ctx.Err().Error()}, ctx.Err()
		case <-t.C:
		}
	}
	return agentclient.AgentResponse{
		Success:  b.Err == "",
		Result:   b.Result,
		Error:    b.Err,
		Attempts: 1,
		Elapsed:  b.Delay,
	}, nil
}

func (c *FakeAgentClient) HealthCheck(_ context.Context, address string) agentclient.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unhealthy[address] {
		return agentclient.HealthStatus{Error: "unreachable"}
	}
	return agentclient.HealthStatus{IsHealthy: true, ResponseTimeMs: 1}
}

func (c *FakeAgentClient) Cancel(_ context.Context, _ string, taskID string) bool {
	c.mu.Lock()
	c.cancelled = append(c.cancelled, taskID)
	c.mu.Unlock()
	return true
}

func (c *FakeAgentClient) Status(_ context.Context, _ string) (agentclient.AgentLoad, error) {
	return agentclient.AgentLoad{Capacity: 1}, nil
}

// Calls returns every payload sent so far.
func (c *FakeAgentClient) Calls() []agentclient.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]agentclient.Payload(nil), c.calls...)
}

// Cancelled returns the task ids passed to Cancel.
func (c *FakeAgentClient) Cancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

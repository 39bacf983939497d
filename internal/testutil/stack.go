package testutil

import (
	"time"

	"github.com/alanyang/job-dispatch/internal/adapter/memory"
	agentsvc "github.com/alanyang/job-dispatch/internal/service/agent"
	"github.com/alanyang/job-dispatch/internal/service/coordinator"
	jobsvc "github.com/alanyang/job-dispatch/internal/service/job"
	"github.com/alanyang/job-dispatch/internal/service/orchestrator"
	"github.com/alanyang/job-dispatch/internal/service/selector"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
)

// Stack is every service wired over one in-memory Fixture, for handler tests.
type Stack struct {
	*Fixture
	Client       *FakeAgentClient
	Queue        *memory.Queue
	Jobs         *jobsvc.Service
	Agents       *agentsvc.Service
	Tracker      *tracker.Service
	Orchestrator *orchestrator.Service
}

func NewStack(cfg orchestrator.Config) *Stack {
	f := NewFixture()
	client := NewFakeAgentClient()
	queue := memory.NewQueue()
	d := f.Store.Distributions()

	tr := tracker.NewService(d, d, d, f.Store.Agents(), f.Bus, nil)
	coord := coordinator.NewService(f.Store.Jobs(), d, tr, client, f.Bus, nil, coordinator.Config{Timeout: time.Minute})
	sel := selector.NewService(d, tr, client, f.Bus, nil)
	orch := orchestrator.NewService(f.Store.Jobs(), f.Store.Agents(), d, coord, tr, sel,
		memory.NewLocker(), queue, f.Bus, nil, cfg)

	return &Stack{
		Fixture:      f,
		Client:       client,
		Queue:        queue,
		Jobs:         jobsvc.NewService(f.Store.Jobs(), d, d, d, queue, memory.NewIdempotency(), f.Bus, nil),
		Agents:       agentsvc.NewService(f.Store.Agents(), d, client, memory.NewCache(), f.Bus, agentsvc.Config{}),
		Tracker:      tr,
		Orchestrator: orch,
	}
}

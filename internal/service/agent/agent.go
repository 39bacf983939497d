package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyang/job-dispatch/internal/apperr"
	domainagent "github.com/alanyang/job-dispatch/internal/domain/agent"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/event"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
	portagent "github.com/alanyang/job-dispatch/internal/port/agent"
	"github.com/alanyang/job-dispatch/internal/port/agentclient"
	portcache "github.com/alanyang/job-dispatch/internal/port/cache"
	portdist "github.com/alanyang/job-dispatch/internal/port/distribution"
	portbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
)

type Config struct {
	HealthCacheTTL time.Duration
}

// Registration is the profile supplied when an agent joins the pool.
type Registration struct {
	Name       string      `json:"name"`
	Address    string      `json:"address"`
	Tags       []string    `json:"tags"`
	Skill      skill.Level `json:"skill"`
	Reputation float64     `json:"reputation"`
	IsFree     *bool       `json:"is_free,omitempty"`
	Price      float64     `json:"price"`
	AutoAccept *bool       `json:"auto_accept,omitempty"`
}

func (r Registration) validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name is required", apperr.ErrValidation)
	case strings.TrimSpace(r.Address) == "":
		return fmt.Errorf("%w: address is required", apperr.ErrValidation)
	case r.Reputation < 0:
		return fmt.Errorf("%w: reputation must not be negative", apperr.ErrValidation)
	case r.Price < 0:
		return fmt.Errorf("%w: price must not be negative", apperr.ErrValidation)
	}
	u, err := url.Parse(r.Address)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: address must be an http(s) url", apperr.ErrValidation)
	}
	return nil
}

// Health is the health check result for one agent.
type Health struct {
	AgentID   uuid.UUID `json:"agent_id"`
	Name      string    `json:"name,omitempty"`
	Address   string    `json:"address,omitempty"`
	agentclient.HealthStatus
	Cached    bool      `json:"cached"`
	CheckedAt time.Time `json:"checked_at"`
}

// Service manages the agent pool: registration, activation, performance and health.
// [SRP] Agent reference data only. Scoring reads candidates straight from the repository.
type Service struct {
	repo   portagent.Repository
	perf   portdist.PerformanceRepository
	client agentclient.Client
	cache  portcache.Cache
	bus    portbus.EventBus
	cfg    Config
}

func NewService(
	repo portagent.Repository,
	perf portdist.PerformanceRepository,
	client agentclient.Client,
	cache portcache.Cache,
	bus portbus.EventBus,
	cfg Config,
) *Service {
	if cfg.HealthCacheTTL <= 0 {
		cfg.HealthCacheTTL = 30 * time.Second
	}
	return &Service{repo: repo, perf: perf, client: client, cache: cache, bus: bus, cfg: cfg}
}

func (s *Service) Register(ctx context.Context, reg Registration) (domainagent.Agent, error) {
	if err := reg.validate(); err != nil {
		return domainagent.Agent{}, err
	}
	a := domainagent.New(strings.TrimSpace(reg.Name), strings.TrimRight(reg.Address, "/"), reg.Tags, reg.Skill)
	a.Reputation = reg.Reputation
	a.Price = reg.Price
	if reg.IsFree != nil {
		a.IsFree = *reg.IsFree
	} else {
		a.IsFree = reg.Price == 0
	}
	if reg.AutoAccept != nil {
		a.AutoAccept = *reg.AutoAccept
	}

	created, err := s.repo.Create(ctx, a)
	if err != nil {
		return domainagent.Agent{}, fmt.Errorf("register agent: %w", err)
	}
	if err := s.bus.Publish(ctx, event.New(event.TypeAgentRegistered, created.ID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish AgentRegistered event", "agent_id", created.ID, "error", err)
	}
	slog.InfoContext(ctx, "agent registered", "agent_id", created.ID, "name", created.Name, "skill", created.Skill)
	return created, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (domainagent.Agent, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domainagent.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error) {
	agents, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// SetActive takes an agent in or out of the scoring pool. Open assignments are unaffected.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set agent active: %w", err)
	}
	if err := s.bus.Publish(ctx, event.New(event.TypeAgentUpdated, id)); err != nil {
		slog.ErrorContext(ctx, "failed to publish AgentUpdated event", "agent_id", id, "error", err)
	}
	return nil
}

// Performance returns the agent's aggregate. An agent with no finished assignment gets a zero value.
func (s *Service) Performance(ctx context.Context, id uuid.UUID) (distribution.Performance, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return distribution.Performance{}, err
	}
	p, err := s.perf.GetPerformance(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return distribution.Performance{AgentID: id}, nil
	}
	if err != nil {
		return distribution.Performance{}, fmt.Errorf("get performance: %w", err)
	}
	return p, nil
}

// CheckHealth checks the given agents, or every active agent when ids is empty. All checks run in
// parallel and each one absorbs its own failure. Results are cached for HealthCacheTTL.
func (s *Service) CheckHealth(ctx context.Context, ids []uuid.UUID) ([]Health, error) {
	if len(ids) == 0 {
		active := true
		agents, err := s.List(ctx, domainagent.ListFilters{IsActive: &active})
		if err != nil {
			return nil, err
		}
		for _, a := range agents {
			ids = append(ids, a.ID)
		}
	}

	out := make([]Health, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			out[i] = s.checkOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func (s *Service) checkOne(ctx context.Context, id uuid.UUID) Health {
	key := "agent-health:" + id.String()
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var h Health
		if err := json.Unmarshal(raw, &h); err == nil {
			h.Cached = true
			return h
		}
	}

	h := Health{AgentID: id, CheckedAt: time.Now().UTC()}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		h.Error = "agent not found"
		return h
	}
	h.Name, h.Address = a.Name, a.Address
	h.HealthStatus = s.client.HealthCheck(ctx, a.Address)

	if raw, err := json.Marshal(h); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cfg.HealthCacheTTL); err != nil {
			slog.WarnContext(ctx, "failed to cache agent health", "agent_id", id, "error", err)
		}
	}
	return h
}

// Load asks the agent's /status endpoint for its current load.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (agentclient.AgentLoad, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return agentclient.AgentLoad{}, err
	}
	load, err := s.client.Status(ctx, a.Address)
	if err != nil {
		return agentclient.AgentLoad{}, fmt.Errorf("agent load: %w", err)
	}
	return load, nil
}

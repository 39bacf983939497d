package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/job-dispatch/internal/adapter/httpagent"
	"github.com/alanyang/job-dispatch/internal/adapter/memory"
	pgdb "github.com/alanyang/job-dispatch/internal/adapter/postgres"
	pgagent "github.com/alanyang/job-dispatch/internal/adapter/postgres/agent"
	pgdist "github.com/alanyang/job-dispatch/internal/adapter/postgres/distribution"
	pgeventbus "github.com/alanyang/job-dispatch/internal/adapter/postgres/eventbus"
	pgidempotency "github.com/alanyang/job-dispatch/internal/adapter/postgres/idempotency"
	pgjob "github.com/alanyang/job-dispatch/internal/adapter/postgres/job"
	pglocker "github.com/alanyang/job-dispatch/internal/adapter/postgres/locker"
	"github.com/alanyang/job-dispatch/internal/adapter/postgres/migrations"
	"github.com/alanyang/job-dispatch/internal/config"
	"github.com/alanyang/job-dispatch/internal/metrics"
	portagent "github.com/alanyang/job-dispatch/internal/port/agent"
	"github.com/alanyang/job-dispatch/internal/port/agentclient"
	portdist "github.com/alanyang/job-dispatch/internal/port/distribution"
	porteventbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
	portidem "github.com/alanyang/job-dispatch/internal/port/idempotency"
	portjob "github.com/alanyang/job-dispatch/internal/port/job"
	portlocker "github.com/alanyang/job-dispatch/internal/port/locker"

	agentsvc "github.com/alanyang/job-dispatch/internal/service/agent"
	"github.com/alanyang/job-dispatch/internal/service/coordinator"
	jobsvc "github.com/alanyang/job-dispatch/internal/service/job"
	"github.com/alanyang/job-dispatch/internal/service/orchestrator"
	"github.com/alanyang/job-dispatch/internal/service/selector"
	"github.com/alanyang/job-dispatch/internal/service/tracker"

	"github.com/alanyang/job-dispatch/internal/transport"
	mcptransport "github.com/alanyang/job-dispatch/internal/transport/mcp"
)

// Version is reported by the MCP server and the CLI.
var Version = "dev"

// App holds the top-level resources needed to run and gracefully stop the server.
type App struct {
	Config       config.Config
	Pool         *pgxpool.Pool // nil for the memory store
	Server       *http.Server
	Jobs         *jobsvc.Service
	Orchestrator *orchestrator.Service
	Metrics      *metrics.Collector
	queue        *memory.Queue
	jobRepo      portjob.Repository
}

type agentStore interface {
	portagent.Repository
	portagent.CandidateReader
}

type distributionStore interface {
	portdist.Repository
	portdist.PerformanceRepository
	portdist.LogRepository
}

// stores is one backing store's set of adapters.
type stores struct {
	pool   *pgxpool.Pool
	jobs   portjob.Repository
	agents agentStore
	dists  distributionStore
	locker portlocker.AdvisoryLocker
	bus    porteventbus.EventBus
	idem   portidem.Store
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		st := memory.NewStore()
		slog.Warn("using the in-memory store; state is lost on exit")
		return stores{
			jobs:   st.Jobs(),
			agents: st.Agents(),
			dists:  st.Distributions(),
			locker: memory.NewLocker(),
			bus:    memory.NewEventBus(),
			idem:   memory.NewIdempotency(),
		}, nil
	case config.StorePostgres:
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return stores{}, err
		}
		if cfg.Database.AutoMigrate {
			if _, err := migrations.Migrate(ctx, pool); err != nil {
				pool.Close()
				return stores{}, fmt.Errorf("migrating database: %w", err)
			}
		}
		return stores{
			pool:   pool,
			jobs:   pgjob.New(pool),
			agents: pgagent.New(pool),
			dists:  pgdist.New(pool),
			locker: pglocker.New(pool),
			bus:    pgeventbus.New(pool),
			idem:   pgidempotency.New(pool),
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// Connect opens the Postgres pool described by cfg.
func Connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := pgdb.Connect(ctx, cfg.Database.URL, pgdb.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// RetryPolicy is the agent call policy described by cfg.
func RetryPolicy(cfg config.Config) agentclient.RetryPolicy {
	return agentclient.RetryPolicy{
		MaxRetries:     cfg.Agent.MaxRetries,
		BaseDelay:      cfg.Agent.RetryBaseDelay,
		Multiplier:     cfg.Agent.RetryMultiplier,
		RequestTimeout: cfg.Agent.RequestTimeout,
		Retryable:      httpagent.DefaultRetryable,
	}
}

// Build is the composition root: the only place concrete types are wired to their
// interface dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	strategy, err := selector.ParseStrategy(cfg.Distribution.Strategy)
	if err != nil {
		return nil, err
	}

	// ── Adapters ─────────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m := metrics.NewCollector()
	queue := memory.NewQueue()
	cache := memory.NewCache()
	client := httpagent.New(httpagent.Config{
		HealthTimeout: cfg.Agent.HealthTimeout,
		CancelTimeout: cfg.Agent.CancelTimeout,
	}, m)

	// ── Services ─────────────────────────────────────────────────────────────
	tr := tracker.NewService(st.dists, st.dists, st.dists, st.agents, st.bus, m)
	coord := coordinator.NewService(st.jobs, st.dists, tr, client, st.bus, m, coordinator.Config{
		Retry:   RetryPolicy(cfg),
		Timeout: cfg.Distribution.Timeout,
	})
	sel := selector.NewService(st.dists, tr, client, st.bus, m)
	orch := orchestrator.NewService(st.jobs, st.agents, st.dists, coord, tr, sel, st.locker, queue, st.bus, m,
		orchestrator.Config{
			MaxAgentsPerJob: cfg.Distribution.MaxAgentsPerJob,
			Quorum:          cfg.Distribution.Quorum,
			Strategy:        strategy,
			BatchSize:       cfg.Intake.BatchSize,
			PollInterval:    cfg.Intake.Interval,
		})
	jobs := jobsvc.NewService(st.jobs, st.dists, st.dists, st.dists, queue, st.idem, st.bus, m)
	agents := agentsvc.NewService(st.agents, st.dists, client, cache, st.bus,
		agentsvc.Config{HealthCacheTTL: cfg.Agent.HealthCacheTTL})

	mcpServer := mcptransport.New(orch, tr, Version)

	// ── Transport ─────────────────────────────────────────────────────────────
	var health transport.HealthFunc
	if st.pool != nil {
		health = st.pool.Ping
	}
	router := transport.NewRouter(ctx, jobs, agents, orch, tr, mcpServer, st.bus, m, health)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	slog.Info("application wired", "port", cfg.Server.Port, "store", cfg.Store, "strategy", strategy,
		"max_agents_per_job", cfg.Distribution.MaxAgentsPerJob, "quorum", cfg.Distribution.Quorum)

	return &App{
		Config:       cfg,
		Pool:         st.pool,
		Server:       server,
		Jobs:         jobs,
		Orchestrator: orch,
		Metrics:      m,
		queue:        queue,
		jobRepo:      st.jobs,
	}, nil
}

// Close releases the store.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

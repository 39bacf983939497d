package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alanyang/job-dispatch/internal/metrics"
	porteventbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
	agentsvc "github.com/alanyang/job-dispatch/internal/service/agent"
	jobsvc "github.com/alanyang/job-dispatch/internal/service/job"
	"github.com/alanyang/job-dispatch/internal/service/orchestrator"
	"github.com/alanyang/job-dispatch/internal/service/tracker"

	agenthandler "github.com/alanyang/job-dispatch/internal/transport/agent"
	controlhandler "github.com/alanyang/job-dispatch/internal/transport/control"
	disthandler "github.com/alanyang/job-dispatch/internal/transport/distribution"
	jobhandler "github.com/alanyang/job-dispatch/internal/transport/job"
	mcptransport "github.com/alanyang/job-dispatch/internal/transport/mcp"
	wshandler "github.com/alanyang/job-dispatch/internal/transport/ws"
)

// HealthFunc reports whether the backing store is reachable. Nil means always healthy.
type HealthFunc func(ctx context.Context) error

func NewRouter(
	ctx context.Context,
	jobSvc *jobsvc.Service,
	agentSvc *agentsvc.Service,
	orch *orchestrator.Service,
	tr *tracker.Service,
	mcpServer *mcptransport.Server,
	eventBus porteventbus.EventBus,
	m *metrics.Collector,
	health HealthFunc,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger())
	r.Use(CORSMiddleware())

	r.GET("/healthz", healthz(health))
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	if mcpServer != nil {
		r.Any("/mcp", gin.WrapH(mcpServer.Handler()))
	}

	api := r.Group("/api")

	jobhandler.Register(api.Group("/jobs"), jobSvc)
	agenthandler.Register(api.Group("/agents"), agentSvc)
	disthandler.Register(api.Group("/distributions"), orch, tr)
	controlhandler.Register(api, orch, jobSvc)

	hub := wshandler.NewHub()
	hub.Register(api.Group("/ws"))
	hub.Bridge(ctx, eventBus)

	return r
}

func healthz(check HealthFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

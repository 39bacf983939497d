package agent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alanyang/job-dispatch/internal/adapter/memory"
	"github.com/alanyang/job-dispatch/internal/apperr"
	domainagent "github.com/alanyang/job-dispatch/internal/domain/agent"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
	"github.com/alanyang/job-dispatch/internal/mocks"
	agentsvc "github.com/alanyang/job-dispatch/internal/service/agent"
	"github.com/alanyang/job-dispatch/internal/testutil"
	transportagent "github.com/alanyang/job-dispatch/internal/transport/agent"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(svc *agentsvc.Service) *gin.Engine {
	r := gin.New()
	transportagent.Register(r.Group("/agents"), svc)
	return r
}

type mockDeps struct {
	repo *mocks.MockAgentRepository
	perf *mocks.MockPerformanceRepository
	bus  *mocks.MockEventBus
}

func newMockRouter(t *testing.T) (*gin.Engine, mockDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := mockDeps{
		repo: mocks.NewMockAgentRepository(ctrl),
		perf: mocks.NewMockPerformanceRepository(ctrl),
		bus:  mocks.NewMockEventBus(ctrl),
	}
	svc := agentsvc.NewService(d.repo, d.perf, mocks.NewMockAgentClient(ctrl), memory.NewCache(), d.bus, agentsvc.Config{})
	return newRouter(svc), d
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequestWithContext(context.Background(), method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ── POST /agents ──────────────────────────────────────────────────────────────

func TestRegisterAgent(t *testing.T) {
	r, d := newMockRouter(t)
	d.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a domainagent.Agent) (domainagent.Agent, error) { return a, nil })
	d.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	w := do(r, http.MethodPost, "/agents", map[string]any{
		"name":    "translator",
		"address": "http://translator:9000",
		"tags":    []string{"German"},
		"skill":   "expert",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var got domainagent.Agent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, skill.Expert, got.Skill)
	assert.Equal(t, []string{"german"}, got.Tags)
	assert.True(t, got.IsActive)
}

func TestRegisterAgent_Invalid(t *testing.T) {
	r, _ := newMockRouter(t)

	w := do(r, http.MethodPost, "/agents", map[string]any{"name": "x", "address": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "address")
}

// ── GET /agents ───────────────────────────────────────────────────────────────

func TestListAgents_WithFilters(t *testing.T) {
	r, d := newMockRouter(t)
	d.repo.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f domainagent.ListFilters) ([]domainagent.Agent, error) {
			require.NotNil(t, f.IsActive)
			assert.True(t, *f.IsActive)
			assert.Nil(t, f.AutoAccept)
			return nil, nil
		})

	w := do(r, http.MethodGet, "/agents?is_active=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestListAgents_BadFilter(t *testing.T) {
	r, _ := newMockRouter(t)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/agents?auto_accept=maybe", nil).Code)
}

// ── GET /agents/:id ───────────────────────────────────────────────────────────

func TestGetAgent(t *testing.T) {
	tests := []struct {
		name     string
		path     func(id uuid.UUID) string
		setup    func(d mockDeps, id uuid.UUID)
		wantCode int
	}{
		{
			name: "found",
			path: func(id uuid.UUID) string { return "/agents/" + id.String() },
			setup: func(d mockDeps, id uuid.UUID) {
				d.repo.EXPECT().GetByID(gomock.Any(), id).Return(domainagent.Agent{ID: id}, nil)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "not found",
			path: func(id uuid.UUID) string { return "/agents/" + id.String() },
			setup: func(d mockDeps, id uuid.UUID) {
				d.repo.EXPECT().GetByID(gomock.Any(), id).Return(domainagent.Agent{}, apperr.ErrNotFound)
			},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "bad id",
			path:     func(uuid.UUID) string { return "/agents/xyz" },
			setup:    func(mockDeps, uuid.UUID) {},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, d := newMockRouter(t)
			id := uuid.New()
			tt.setup(d, id)
			assert.Equal(t, tt.wantCode, do(r, http.MethodGet, tt.path(id), nil).Code)
		})
	}
}

// ── PATCH /agents/:id ─────────────────────────────────────────────────────────

func TestSetActive(t *testing.T) {
	r, d := newMockRouter(t)
	id := uuid.New()
	d.repo.EXPECT().SetActive(gomock.Any(), id, false).Return(nil)
	d.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	w := do(r, http.MethodPatch, "/agents/"+id.String(), map[string]any{"is_active": false})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPatch, "/agents/"+id.String(), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ── GET /agents/:id/performance ───────────────────────────────────────────────

func TestPerformance(t *testing.T) {
	r, d := newMockRouter(t)
	id := uuid.New()
	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(domainagent.Agent{ID: id}, nil)
	d.perf.EXPECT().GetPerformance(gomock.Any(), id).
		Return(distribution.Performance{AgentID: id, TotalJobs: 4, CompletedJobs: 3, SuccessRate: 0.75}, nil)

	w := do(r, http.MethodGet, "/agents/"+id.String()+"/performance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got distribution.Performance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 0.75, got.SuccessRate)
}

// ── POST /agents/health ───────────────────────────────────────────────────────

func TestCheckHealth(t *testing.T) {
	f := testutil.NewFixture()
	client := testutil.NewFakeAgentClient()
	svc := agentsvc.NewService(f.Store.Agents(), f.Store.Distributions(), client, memory.NewCache(), f.Bus,
		agentsvc.Config{HealthCacheTTL: time.Minute})
	r := newRouter(svc)
	agents := f.Agents(t, 2, nil, skill.Beginner)
	client.SetUnhealthy(agents[1].Address)

	w := do(r, http.MethodPost, "/agents/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Results []agentsvc.Health `json:"results"`
		Total   int               `json:"total"`
		Healthy int               `json:"healthy"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.Healthy)

	w = do(r, http.MethodPost, "/agents/health", map[string]any{"agent_ids": []uuid.UUID{agents[0].ID}})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, agents[0].ID, body.Results[0].AgentID)
}

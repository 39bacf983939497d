package distribution_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaindist "github.com/alanyang/job-dispatch/internal/domain/distribution"
	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
	"github.com/alanyang/job-dispatch/internal/service/orchestrator"
	"github.com/alanyang/job-dispatch/internal/testutil"
	transportdist "github.com/alanyang/job-dispatch/internal/transport/distribution"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(st *testutil.Stack) *gin.Engine {
	r := gin.New()
	transportdist.Register(r.Group("/distributions"), st.Orchestrator, st.Tracker)
	return r
}

func post(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func legPath(rec domaindist.Record, agentID uuid.UUID, action string) string {
	p := "/distributions/" + rec.ID.String() + "/agents/" + agentID.String()
	if action != "" {
		p += "/" + action
	}
	return p
}

func TestCallbacks_ProgressThenResultResolves(t *testing.T) {
	st := testutil.NewStack(orchestrator.Config{})
	r := newRouter(st)
	j := st.Job(t, nil, skill.Beginner)
	agents := st.Fixture.Agents(t, 2, nil, skill.Beginner)
	rec := st.Open(t, j, agents)

	w := post(r, legPath(rec, agents[0].ID, "status"), map[string]any{"progress": 40})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var leg domaindist.Assignment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &leg))
	assert.Equal(t, domaindist.StatusWorking, leg.WorkStatus)
	assert.Equal(t, 40, leg.Progress)
	assert.NotNil(t, leg.StartedAt)

	w = post(r, legPath(rec, agents[0].ID, "result"), map[string]any{"result": "done"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res orchestrator.CallbackResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, domaindist.StatusCompleted, res.Assignment.WorkStatus)
	require.NotNil(t, res.Selection)
	assert.True(t, res.Selection.Resolved)
	require.NotNil(t, res.Selection.Winner)
	assert.Equal(t, agents[0].ID, res.Selection.Winner.AgentID)

	stored, err := st.Store.Jobs().GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, domainjob.StatusCompleted, stored.Status)

	loser := get(r, legPath(rec, agents[1].ID, ""))
	require.Equal(t, http.StatusOK, loser.Code)
	require.NoError(t, json.Unmarshal(loser.Body.Bytes(), &leg))
	assert.Equal(t, domaindist.StatusCancelled, leg.WorkStatus)

	late := post(r, legPath(rec, agents[1].ID, "result"), map[string]any{"result": "too late"})
	assert.Equal(t, http.StatusConflict, late.Code)
}

func TestCallbacks_FailureAndStats(t *testing.T) {
	st := testutil.NewStack(orchestrator.Config{})
	r := newRouter(st)
	j := st.Job(t, nil, skill.Beginner)
	agents := st.Fixture.Agents(t, 2, nil, skill.Beginner)
	rec := st.Open(t, j, agents)

	w := post(r, legPath(rec, agents[1].ID, "failure"), map[string]any{"error": "model overloaded"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res orchestrator.CallbackResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, domaindist.StatusFailed, res.Assignment.WorkStatus)
	assert.Equal(t, "model overloaded", res.Assignment.ErrorMessage)
	assert.Nil(t, res.Selection)

	w = get(r, "/distributions/"+rec.ID.String()+"/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats domaindist.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, domaindist.Stats{Total: 2, Assigned: 1, Failed: 1}, stats)

	w = get(r, "/distributions/"+rec.ID.String()+"/agents")
	require.Equal(t, http.StatusOK, w.Code)
	var legs []domaindist.Assignment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &legs))
	require.Len(t, legs, 2)
	assert.Equal(t, agents[0].ID, legs[0].AgentID)
}

func TestCallbacks_BadRequests(t *testing.T) {
	st := testutil.NewStack(orchestrator.Config{})
	r := newRouter(st)
	j := st.Job(t, nil, skill.Beginner)
	agents := st.Fixture.Agents(t, 1, nil, skill.Beginner)
	rec := st.Open(t, j, agents)

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
	}{
		{"progress above 100", legPath(rec, agents[0].ID, "status"), map[string]any{"progress": 101}, http.StatusBadRequest},
		{"progress missing", legPath(rec, agents[0].ID, "status"), map[string]any{}, http.StatusBadRequest},
		{"failure without message", legPath(rec, agents[0].ID, "failure"), map[string]any{}, http.StatusBadRequest},
		{"malformed distribution id", "/distributions/x/agents/" + agents[0].ID.String() + "/result", map[string]any{}, http.StatusBadRequest},
		{"malformed agent id", "/distributions/" + rec.ID.String() + "/agents/x/result", map[string]any{}, http.StatusBadRequest},
		{"unknown leg", legPath(rec, uuid.New(), "result"), map[string]any{"result": "x"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, post(r, tt.path, tt.body).Code)
		})
	}
}

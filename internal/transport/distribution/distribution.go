// Package distribution serves the agent callbacks of an open distribution: progress reports,
// results and failures, plus read access to its legs.
package distribution

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domaindist "github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/service/orchestrator"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
	"github.com/alanyang/job-dispatch/internal/transport/httperr"
)

func Register(rg *gin.RouterGroup, orch *orchestrator.Service, tr *tracker.Service) {
	rg.GET("/:id/agents", listAssignments(tr))
	rg.GET("/:id/stats", stats(tr))
	rg.GET("/:id/agents/:agentId", getAssignment(tr))
	rg.POST("/:id/agents/:agentId/status", reportProgress(orch))
	rg.POST("/:id/agents/:agentId/result", submitResult(orch))
	rg.POST("/:id/agents/:agentId/failure", reportFailure(orch))
}

type progressReq struct {
	Progress *int `json:"progress" binding:"required,min=0,max=100"`
}

type resultReq struct {
	Result string `json:"result"`
}

type failureReq struct {
	Error string `json:"error" binding:"required"`
}

func reportProgress(orch *orchestrator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := parseKey(c)
		if !ok {
			return
		}
		var req progressReq
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		a, err := orch.OnProgress(c.Request.Context(), key, *req.Progress)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func submitResult(orch *orchestrator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := parseKey(c)
		if !ok {
			return
		}
		var req resultReq
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		res, err := orch.OnResult(c.Request.Context(), key, req.Result)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func reportFailure(orch *orchestrator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := parseKey(c)
		if !ok {
			return
		}
		var req failureReq
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		res, err := orch.OnFailure(c.Request.Context(), key, req.Error)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func getAssignment(tr *tracker.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := parseKey(c)
		if !ok {
			return
		}

		a, err := tr.Get(c.Request.Context(), key)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func listAssignments(tr *tracker.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httperr.BadRequest(c, "invalid distribution id")
			return
		}

		legs, err := tr.List(c.Request.Context(), id)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if legs == nil {
			legs = []domaindist.Assignment{}
		}
		c.JSON(http.StatusOK, legs)
	}
}

func stats(tr *tracker.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httperr.BadRequest(c, "invalid distribution id")
			return
		}

		st, err := tr.Stats(c.Request.Context(), id)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func parseKey(c *gin.Context) (domaindist.Key, bool) {
	distID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.BadRequest(c, "invalid distribution id")
		return domaindist.Key{}, false
	}
	agentID, err := uuid.Parse(c.Param("agentId"))
	if err != nil {
		httperr.BadRequest(c, "invalid agent id")
		return domaindist.Key{}, false
	}
	return domaindist.Key{DistributionID: distID, AgentID: agentID}, true
}

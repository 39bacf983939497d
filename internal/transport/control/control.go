// Package control serves the operator endpoints: manual processing, manual sweeps and stats.
package control

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jobsvc "github.com/alanyang/job-dispatch/internal/service/job"
	"github.com/alanyang/job-dispatch/internal/service/orchestrator"
	"github.com/alanyang/job-dispatch/internal/transport/httperr"
)

func Register(rg *gin.RouterGroup, orch *orchestrator.Service, jobs *jobsvc.Service) {
	rg.POST("/process", process(orch))
	rg.POST("/sweep", sweep(orch))
	rg.GET("/stats", stats(jobs))
}

type processReq struct {
	JobIDs []uuid.UUID `json:"job_ids"`
}

// process runs a batch over the given jobs, or over the oldest Open jobs when none are given.
// It answers once the distributions are open; agent calls carry on after the response.
func process(orch *orchestrator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req processReq
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				httperr.BadRequest(c, err.Error())
				return
			}
		}

		if len(req.JobIDs) > 0 {
			c.JSON(http.StatusOK, orch.ProcessBatch(c.Request.Context(), req.JobIDs))
			return
		}
		res, err := orch.ProcessPending(c.Request.Context())
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func sweep(orch *orchestrator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := orch.SweepTimeouts(c.Request.Context(), time.Now().UTC())
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func stats(jobs *jobsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := jobs.Stats(c.Request.Context())
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

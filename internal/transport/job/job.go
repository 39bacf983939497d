package job

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
	jobsvc "github.com/alanyang/job-dispatch/internal/service/job"
	"github.com/alanyang/job-dispatch/internal/transport/httperr"
)

// IdempotencyHeader carries the client key that makes a submission safe to retry.
const IdempotencyHeader = "Idempotency-Key"

const maxListLimit = 500

var knownStatuses = map[domainjob.Status]bool{
	domainjob.StatusOpen:        true,
	domainjob.StatusDistributed: true,
	domainjob.StatusInProgress:  true,
	domainjob.StatusCompleted:   true,
	domainjob.StatusCancelled:   true,
	domainjob.StatusExpired:     true,
}

func Register(rg *gin.RouterGroup, svc *jobsvc.Service) {
	rg.POST("", submitJob(svc))
	rg.GET("", listJobs(svc))
	rg.GET("/:id", jobStatus(svc))
}

func submitJob(svc *jobsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req jobsvc.Submission
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		j, replayed, err := svc.SubmitOnce(c.Request.Context(), c.GetHeader(IdempotencyHeader), req)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if replayed {
			c.Header("Idempotent-Replayed", "true")
			c.JSON(http.StatusOK, j)
			return
		}
		c.JSON(http.StatusCreated, j)
	}
}

func listJobs(svc *jobsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := domainjob.ListFilters{Limit: 100}

		if v := c.Query("status"); v != "" {
			s := domainjob.Status(v)
			if !knownStatuses[s] {
				httperr.BadRequest(c, "invalid status")
				return
			}
			filters.Status = &s
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxListLimit {
				httperr.BadRequest(c, "limit must be between 1 and 500")
				return
			}
			filters.Limit = n
		}
		filters.OldestFirst = c.Query("order") == "asc"

		jobs, err := svc.List(c.Request.Context(), filters)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if jobs == nil {
			jobs = []domainjob.Job{}
		}
		c.JSON(http.StatusOK, jobs)
	}
}

func jobStatus(svc *jobsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httperr.BadRequest(c, "invalid id")
			return
		}

		view, err := svc.Status(c.Request.Context(), id)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

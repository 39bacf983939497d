package agent

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagent "github.com/alanyang/job-dispatch/internal/domain/agent"
	agentsvc "github.com/alanyang/job-dispatch/internal/service/agent"
	"github.com/alanyang/job-dispatch/internal/transport/httperr"
)

func Register(rg *gin.RouterGroup, svc *agentsvc.Service) {
	rg.POST("", registerAgent(svc))
	rg.GET("", listAgents(svc))
	rg.POST("/health", checkHealth(svc))
	rg.GET("/:id", getAgent(svc))
	rg.PATCH("/:id", setActive(svc))
	rg.GET("/:id/performance", performance(svc))
	rg.GET("/:id/load", load(svc))
}

func registerAgent(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req agentsvc.Registration
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		a, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

func listAgents(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filters domainagent.ListFilters

		for param, dst := range map[string]**bool{"is_active": &filters.IsActive, "auto_accept": &filters.AutoAccept} {
			v := c.Query(param)
			if v == "" {
				continue
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				httperr.BadRequest(c, "invalid "+param)
				return
			}
			*dst = &b
		}

		agents, err := svc.List(c.Request.Context(), filters)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		if agents == nil {
			agents = []domainagent.Agent{}
		}
		c.JSON(http.StatusOK, agents)
	}
}

func getAgent(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		a, err := svc.GetByID(c.Request.Context(), id)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

type setActiveReq struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func setActive(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req setActiveReq
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}

		if err := svc.SetActive(c.Request.Context(), id, *req.IsActive); err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "is_active": *req.IsActive})
	}
}

func performance(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		p, err := svc.Performance(c.Request.Context(), id)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func load(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		l, err := svc.Load(c.Request.Context(), id)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, l)
	}
}

type healthReq struct {
	AgentIDs []uuid.UUID `json:"agent_ids"`
}

// checkHealth checks the listed agents, or every active agent for an empty body.
func checkHealth(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req healthReq
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				httperr.BadRequest(c, err.Error())
				return
			}
		}

		results, err := svc.CheckHealth(c.Request.Context(), req.AgentIDs)
		if err != nil {
			httperr.Write(c, err)
			return
		}
		healthy := 0
		for _, h := range results {
			if h.IsHealthy {
				healthy++
			}
		}
		c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results), "healthy": healthy})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hollandm/switchboard/internal/message"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	api := router.Group("/api")
	api.GET("/status", handleStatus(opts))
	api.GET("/agents/:id", handleAgent(opts))
	api.GET("/agents/:id/messages", handleAgentMessages(opts))
	api.GET("/messages", handleMessages(opts))
	api.POST("/broadcast", handleBroadcast(opts))
	api.POST("/command", handleCommand(opts))
	api.POST("/tasks", handleTask(opts))
	api.GET("/stale", handleStale(opts))
	api.GET("/events", handleSSE(opts))
}

func handleStale(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		stale, err := opts.Coordinator.StaleAgents(staleThresholdParam(c))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stale": stale})
	}
}

func handleStatus(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"agents": opts.Coordinator.StatusSnapshot()}
		if opts.Bus != nil {
			body["pending_queries"] = opts.Bus.PendingQueries()
		}
		c.JSON(http.StatusOK, body)
	}
}

func handleAgent(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := opts.Coordinator.AgentSnapshot(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent"})
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

func handleAgentMessages(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit trail disabled"})
			return
		}
		recs, err := opts.Store.ForAgent(c.Param("id"), limitParam(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": recs})
	}
}

func handleMessages(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit trail disabled"})
			return
		}
		recs, err := opts.Store.Recent(limitParam(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": recs})
	}
}

type broadcastRequest struct {
	Kind     string         `json:"kind"`
	Payload  map[string]any `json:"payload"`
	Priority int            `json:"priority"`
}

func handleBroadcast(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req broadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind := message.KindBroadcast
		if req.Kind != "" {
			parsed, err := message.ParseKind(req.Kind)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			kind = parsed
		}
		if err := opts.Coordinator.Broadcast(c.Request.Context(), kind, req.Payload, req.Priority); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"sent": true})
	}
}

type commandRequest struct {
	Target     string         `json:"target"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
}

func handleCommand(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req commandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		delivered, err := opts.Coordinator.SendCommand(c.Request.Context(), req.Target, req.Command, req.Parameters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivered": delivered})
	}
}

type taskRequest struct {
	Task       string         `json:"task"`
	Data       map[string]any `json:"data"`
	Capability string         `json:"capability"`
}

func handleTask(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req taskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		agent, assigned, err := opts.Coordinator.DistributeTask(c.Request.Context(), req.Task, req.Data, req.Capability)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !assigned {
			c.JSON(http.StatusOK, gin.H{"assigned": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"assigned": true, "agent": agent})
	}
}

// limitParam reads ?limit= with a sane default.
func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		return 50
	}
	return limit
}

// staleThresholdParam reads ?threshold= seconds.
func staleThresholdParam(c *gin.Context) time.Duration {
	secs, err := strconv.Atoi(c.DefaultQuery("threshold", "90"))
	if err != nil || secs <= 0 {
		secs = 90
	}
	return time.Duration(secs) * time.Second
}

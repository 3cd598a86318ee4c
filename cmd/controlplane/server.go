package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentrt/runtime/agentcore"
	"github.com/agentrt/runtime/circuitbreaker"
	"github.com/agentrt/runtime/dlq"
	"github.com/agentrt/runtime/eventqueue"
	"github.com/agentrt/runtime/run"
)

// server wires the agent core, tool pipeline, event queue, dead-letter
// queue, and circuit breaker behind a small HTTP surface for
// submitting runs and inspecting runtime health.
type server struct {
	core    *agentcore.Core
	queue   *eventqueue.Queue
	dlqMgr  *dlq.Manager
	breaker *circuitbreaker.Breaker
	runs    run.Store
}

func (s *server) routes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.POST("/v1/runs", s.handleCreateRun)
	r.GET("/v1/runs/:id", s.handleGetRun)
	r.GET("/v1/queue/stats", s.handleQueueStats)
	r.GET("/v1/dlq/stats", s.handleDLQStats)
	r.POST("/v1/dlq/:id/reprocess", s.handleDLQReprocess)
	r.POST("/v1/dlq/:id/poison", s.handleDLQPoison)
	r.GET("/v1/circuit-breaker/stats", s.handleCircuitBreakerStats)
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"queueDepth":     s.queue.Len(),
		"queueFull":      s.queue.IsFull(),
		"circuitBreaker": s.breaker.Stats().State.String(),
	})
}

type createRunRequest struct {
	Input         string `json:"input" binding:"required"`
	SessionID     string `json:"sessionId"`
	CorrelationID string `json:"correlationId"`
}

func (s *server) handleCreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rc := run.Context{
		RunID:         uuid.NewString(),
		SessionID:     req.SessionID,
		CorrelationID: req.CorrelationID,
	}
	if rc.CorrelationID == "" {
		rc.CorrelationID = rc.RunID
	}

	result, err := s.core.Run(c.Request.Context(), rc, req.Input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "runId": rc.RunID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":   rc.RunID,
		"state":   result.State,
		"content": result.Content,
		"steps":   len(result.History),
	})
}

func (s *server) handleGetRun(c *gin.Context) {
	record, err := s.runs.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *server) handleQueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"depth": s.queue.Len(),
		"full":  s.queue.IsFull(),
	})
}

func (s *server) handleDLQStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.dlqMgr.GetDLQStats())
}

func (s *server) handleDLQReprocess(c *gin.Context) {
	event, err := s.dlqMgr.ReprocessFromDLQ(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, event)
}

type poisonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *server) handleDLQPoison(c *gin.Context) {
	var req poisonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.dlqMgr.MarkAsPoison(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) handleCircuitBreakerStats(c *gin.Context) {
	stats := s.breaker.Stats()
	c.JSON(http.StatusOK, gin.H{
		"state":           stats.State.String(),
		"failureCount":    stats.FailureCount,
		"successCount":    stats.SuccessCount,
		"lastStateChange": stats.LastStateChange.Format(time.RFC3339),
	})
}

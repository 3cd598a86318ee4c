package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/agentcore"
	"github.com/agentrt/runtime/bus"
	"github.com/agentrt/runtime/circuitbreaker"
	"github.com/agentrt/runtime/dlq"
	"github.com/agentrt/runtime/eventqueue"
	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/llmplanner"
	"github.com/agentrt/runtime/run/inmem"
	"github.com/agentrt/runtime/tools"
	"github.com/agentrt/runtime/toolpipeline"
)

func newTestServer(t *testing.T) (*server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.DLQ.EnableAutoCleanup = false

	eventBus := bus.New(nil)
	runStore := inmem.New()
	cbCfg := config.ToolCircuitBreakerConfig()
	breaker := circuitbreaker.New("test", circuitbreaker.Config{
		FailureThreshold: cbCfg.FailureThreshold,
		SuccessThreshold: cbCfg.SuccessThreshold,
		RecoveryTimeout:  cbCfg.RecoveryTimeout,
		OperationTimeout: cbCfg.OperationTimeout,
	})
	dlqMgr := dlq.New(cfg.DLQ)
	t.Cleanup(dlqMgr.Close)
	queue := eventqueue.New(cfg.Queue)
	t.Cleanup(queue.Destroy)

	registry := newDemoRegistry()
	validator := tools.NewValidator()
	for _, spec := range registry.Tools() {
		require.NoError(t, validator.Register(spec))
	}
	pipeline := toolpipeline.New(registry, breaker, toolpipeline.WithBus(eventBus), toolpipeline.WithValidator(validator))
	plan := llmplanner.New(echoChatClient{})
	core := agentcore.New(plan, pipeline, registry, cfg.AgentCore, agentcore.WithBus(eventBus), agentcore.WithRunStore(runStore))

	srv := &server{core: core, queue: queue, dlqMgr: dlqMgr, breaker: breaker, runs: runStore}
	router := gin.New()
	srv.routes(router)
	return srv, router
}

func TestHandleHealthReportsQueueAndBreakerState(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestHandleCreateRunCompletesWithEchoPlanner(t *testing.T) {
	_, router := newTestServer(t)

	payload, err := json.Marshal(createRunRequest{Input: "hello there"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(agentcore.StateCompleted), body["state"])
	require.Contains(t, body["content"], "hello there")
}

func TestHandleGetRunReturnsNotFoundForUnknownID(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/does-not-exist", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDLQStatsReturnsEmptyStatsInitially(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/dlq/stats", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats dlq.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 0, stats.Total)
}

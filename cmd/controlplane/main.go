// Command controlplane runs the agent runtime's HTTP control surface:
// it wires the event queue, dead-letter queue, circuit breaker, tool
// pipeline, and agent core into a single process and exposes endpoints
// to submit runs and inspect runtime health.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/agentrt/runtime/agentcore"
	"github.com/agentrt/runtime/bus"
	"github.com/agentrt/runtime/circuitbreaker"
	"github.com/agentrt/runtime/dlq"
	"github.com/agentrt/runtime/eventqueue"
	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/llmplanner"
	"github.com/agentrt/runtime/modelclient"
	"github.com/agentrt/runtime/run/inmem"
	"github.com/agentrt/runtime/tools"
	"github.com/agentrt/runtime/toolpipeline"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONTROLPLANE_CONFIG"), "path to a TOML configuration file (optional, defaults are used otherwise)")
	addr := flag.String("addr", envOr("CONTROLPLANE_ADDR", ":8080"), "HTTP listen address")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("controlplane: load config: %v", err)
		}
		cfg = loaded
	}

	eventBus := bus.New(nil)
	runStore := inmem.New()

	cbCfg := config.ToolCircuitBreakerConfig()
	breaker := circuitbreaker.New("tool-pipeline", circuitbreaker.Config{
		FailureThreshold: cbCfg.FailureThreshold,
		SuccessThreshold: cbCfg.SuccessThreshold,
		RecoveryTimeout:  cbCfg.RecoveryTimeout,
		OperationTimeout: cbCfg.OperationTimeout,
	})

	dlqMgr := dlq.New(cfg.DLQ)
	defer dlqMgr.Close()

	queue := eventqueue.New(cfg.Queue)
	defer queue.Destroy()

	registry := newDemoRegistry()
	validator := tools.NewValidator()
	for _, spec := range registry.Tools() {
		if err := validator.Register(spec); err != nil {
			log.Printf("controlplane: skipping schema for %s: %v", spec.Name, err)
		}
	}

	pipeline := toolpipeline.New(registry, breaker,
		toolpipeline.WithBus(eventBus),
		toolpipeline.WithValidator(validator),
	)

	plan := llmplanner.New(newChatClient())

	core := agentcore.New(plan, pipeline, registry, cfg.AgentCore,
		agentcore.WithBus(eventBus),
		agentcore.WithRunStore(runStore),
	)

	srv := &server{core: core, queue: queue, dlqMgr: dlqMgr, breaker: breaker, runs: runStore}

	router := gin.Default()
	srv.routes(router)

	log.Printf("controlplane listening on %s", *addr)
	if err := router.Run(*addr); err != nil {
		log.Fatalf("controlplane: server: %v", err)
	}
}

// newChatClient selects a modelclient.ChatClient from environment
// configuration, falling back to a local echo client when no provider
// credentials are present so the control plane stays runnable offline.
func newChatClient() modelclient.ChatClient {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := envOr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
		c, err := modelclient.NewAnthropicClientFromAPIKey(key, model)
		if err != nil {
			log.Fatalf("controlplane: anthropic client: %v", err)
		}
		return c
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := envOr("OPENAI_MODEL", "gpt-4o")
		c, err := modelclient.NewOpenAIClientFromAPIKey(key, model)
		if err != nil {
			log.Fatalf("controlplane: openai client: %v", err)
		}
		return c
	}
	log.Printf("controlplane: no LLM provider credentials found, using local echo planner")
	return echoChatClient{}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Package config loads and defaults the runtime's configuration surface:
// the recognized options for the event queue, dead-letter queue, circuit
// breaker, and agent core, as named in the runtime's configuration
// reference. Configuration is typically loaded from a TOML file.
package config

import "time"

// Config is the top-level configuration surface for the runtime.
type Config struct {
	Queue          QueueConfig          `toml:"queue"`
	DLQ            DLQConfig            `toml:"dlq"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker"`
	AgentCore      AgentCoreConfig      `toml:"agent_core"`
}

// QueueConfig controls the event queue's backpressure, size handling,
// persistence, and autoscaling behavior.
type QueueConfig struct {
	MaxMemoryUsage          float64       `toml:"max_memory_usage"`
	MaxCPUUsage             float64       `toml:"max_cpu_usage"`
	MaxQueueDepth           int           `toml:"max_queue_depth"` // 0 = unbounded
	BatchSize               int           `toml:"batch_size"`
	MaxConcurrent           int           `toml:"max_concurrent"`
	EnableAutoScaling       bool          `toml:"enable_auto_scaling"`
	AutoScalingInterval     time.Duration `toml:"auto_scaling_interval"`
	LargeEventThreshold     int64         `toml:"large_event_threshold"`
	HugeEventThreshold      int64         `toml:"huge_event_threshold"`
	MaxEventSize            int64         `toml:"max_event_size"`
	EnableCompression       bool          `toml:"enable_compression"`
	DropHugeEvents          bool          `toml:"drop_huge_events"`
	EnablePersistence       bool          `toml:"enable_persistence"`
	PersistCriticalEvents   bool          `toml:"persist_critical_events"`
	PersistAllEvents        bool          `toml:"persist_all_events"`
	CriticalEventPrefixes   []string      `toml:"critical_event_prefixes"`
	MaxProcessedEvents      int           `toml:"max_processed_events"`
	EnableGlobalConcurrency bool          `toml:"enable_global_concurrency"`
	EnableEventStore        bool         `toml:"enable_event_store"`
	MaxEnqueueRate          float64       `toml:"max_enqueue_rate"` // events/sec, 0 = unlimited
	EnqueueBurst            int           `toml:"enqueue_burst"`
}

// DLQConfig controls dead-letter queue capacity and retention.
type DLQConfig struct {
	MaxDLQSize        int           `toml:"max_dlq_size"`
	MaxRetentionDays  int           `toml:"max_retention_days"`
	EnableAutoCleanup bool          `toml:"enable_auto_cleanup"`
	CleanupInterval   time.Duration `toml:"cleanup_interval"`
	AlertThreshold    int           `toml:"alert_threshold"`
	EnablePersistence bool          `toml:"enable_persistence"`
}

// CircuitBreakerConfig controls the tool-call circuit breaker thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int           `toml:"failure_threshold"`
	RecoveryTimeout  time.Duration `toml:"recovery_timeout"`
	SuccessThreshold int           `toml:"success_threshold"`
	OperationTimeout time.Duration `toml:"operation_timeout"`
}

// AgentCoreConfig controls the Think→Act→Observe loop's bounds and
// multi-agent features.
type AgentCoreConfig struct {
	MaxThinkingIterations int           `toml:"max_thinking_iterations"`
	ThinkingTimeout       time.Duration `toml:"thinking_timeout"`
	Timeout               time.Duration `toml:"timeout"`
	ToolTimeout           time.Duration `toml:"tool_timeout"`
	EnableTools           bool          `toml:"enable_tools"`
	EnableMultiAgent      bool          `toml:"enable_multi_agent"`
	EnableDelegation      bool          `toml:"enable_delegation"`
	MaxChainDepth         int           `toml:"max_chain_depth"`
	EnableMessaging       bool          `toml:"enable_messaging"`
	DeliveryRetryInterval time.Duration `toml:"delivery_retry_interval"`
	DefaultMaxAttempts    int           `toml:"default_max_attempts"`
}

// Default returns the canonical queue-variant configuration (maxCpuUsage
// 0.85, batchSize 20, autoscaler off) together with the documented DLQ,
// circuit breaker, and agent core defaults.
func Default() *Config {
	return &Config{
		Queue:          DefaultQueueConfig(),
		DLQ:            DefaultDLQConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		AgentCore:      DefaultAgentCoreConfig(),
	}
}

// DefaultQueueConfig returns the canonical queue variant.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxMemoryUsage:          0.8,
		MaxCPUUsage:             0.85,
		MaxQueueDepth:           0,
		BatchSize:               20,
		MaxConcurrent:           25,
		EnableAutoScaling:       false,
		AutoScalingInterval:     10 * time.Second,
		LargeEventThreshold:     1 << 20,
		HugeEventThreshold:      10 << 20,
		MaxEventSize:            100 << 20,
		EnableCompression:       true,
		DropHugeEvents:          false,
		EnablePersistence:       false,
		PersistCriticalEvents:   true,
		PersistAllEvents:        false,
		CriticalEventPrefixes:   []string{"agent.", "workflow."},
		MaxProcessedEvents:      10000,
		EnableGlobalConcurrency: false,
		MaxEnqueueRate:          0,
		EnqueueBurst:            0,
	}
}

// FastQueueConfig returns the second coexisting queue variant (maxCpuUsage
// 0.7, batchSize 100, autoscaler on), exposed per the runtime's resolution
// of having two historically coexisting variants with different defaults.
func FastQueueConfig() QueueConfig {
	c := DefaultQueueConfig()
	c.MaxCPUUsage = 0.7
	c.BatchSize = 100
	c.EnableAutoScaling = true
	return c
}

// DefaultDLQConfig returns the documented dead-letter queue defaults.
func DefaultDLQConfig() DLQConfig {
	return DLQConfig{
		MaxDLQSize:        1000,
		MaxRetentionDays:  7,
		EnableAutoCleanup: true,
		CleanupInterval:   time.Hour,
		AlertThreshold:    100,
		EnablePersistence: true,
	}
}

// DefaultCircuitBreakerConfig returns the general-purpose circuit breaker
// defaults (tool calls typically override FailureThreshold=3 and
// RecoveryTimeout=150s, see ToolCircuitBreakerConfig).
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
		OperationTimeout: 60 * time.Second,
	}
}

// ToolCircuitBreakerConfig returns the stricter defaults used to protect
// tool calls specifically.
func ToolCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  150 * time.Second,
		SuccessThreshold: 3,
		OperationTimeout: 60 * time.Second,
	}
}

// DefaultAgentCoreConfig returns the documented agent-core defaults.
func DefaultAgentCoreConfig() AgentCoreConfig {
	return AgentCoreConfig{
		MaxThinkingIterations: 15,
		ThinkingTimeout:       60 * time.Second,
		Timeout:               60 * time.Second,
		ToolTimeout:           60 * time.Second,
		EnableTools:           true,
		EnableMultiAgent:      false,
		EnableDelegation:      false,
		MaxChainDepth:         5,
		EnableMessaging:       false,
		DeliveryRetryInterval: time.Second,
		DefaultMaxAttempts:    2,
	}
}

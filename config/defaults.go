// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package config

import "time"

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Run:        DefaultRunConfig(),
		LLM:        DefaultLLMConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		History:    DefaultHistoryConfig(),
		Trace:      DefaultTraceConfig(),
		Metrics:    DefaultMetricsConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Log:        DefaultLogConfig(),
	}
}

// DefaultRunConfig returns strict resolution with namespacing on.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		TemplateResolutionMode: "strict",
		Namespacing:            true,
		BatchLimit:             0,
		MaxHops:                256,
		MaxConcurrentRuns:      4,
		NodeTimeout:            0,
	}
}

// DefaultLLMConfig returns the OpenAI provider defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		Timeout:        2 * time.Minute,
		RateLimitRPS:   0,
		RateLimitBurst: 1,
		Cache: ResponseCacheConfig{
			TTL:   time.Hour,
			Redis: DefaultRedisConfig(),
		},
	}
}

// DefaultCheckpointConfig returns the in-memory backend.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Backend: "memory",
		TTL:     24 * time.Hour,
		Redis:   DefaultRedisConfig(),
	}
}

// DefaultRedisConfig returns local redis connection settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultHistoryConfig returns the sqlite store, disabled until opted in.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled: false,
		Driver:  "sqlite",
		DSN:     "cascade.db",
	}
}

// DefaultTraceConfig returns artifact writing into ./traces.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		Enabled:      true,
		Dir:          "traces",
		MaxStringLen: 4096,
		MaxListItems: 100,
		MaxMapKeys:   100,
	}
}

// DefaultMetricsConfig returns the disabled Prometheus endpoint.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: false,
		Addr:    ":9091",
	}
}

// DefaultTelemetryConfig returns disabled OTLP export.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "cascade",
		SampleRate:   0.1,
	}
}

// DefaultLogConfig returns console logging to stderr.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package config

import (
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"
)

// Config is the complete runtime configuration.
type Config struct {
	// Run controls workflow execution behavior.
	Run RunConfig `yaml:"run" env:"RUN"`

	// LLM configures the chat-completion provider.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Checkpoint selects the node checkpoint backend.
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// History configures the run-history database.
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Trace configures trace artifact output.
	Trace TraceConfig `yaml:"trace" env:"TRACE"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// RunConfig controls how workflows execute.
type RunConfig struct {
	// TemplateResolutionMode is "strict" or "permissive". Strict fails a
	// node whose parameters reference missing store paths; permissive
	// leaves the expression text in place and records a warning.
	TemplateResolutionMode string `yaml:"template_resolution_mode" env:"TEMPLATE_RESOLUTION_MODE"`

	// Namespacing scopes each node's writes under its own ID.
	Namespacing bool `yaml:"namespacing" env:"NAMESPACING"`

	// SkipOutputScan lists node IDs whose outputs are exempt from the
	// unresolved-placeholder scan, for nodes that relay external text.
	SkipOutputScan []string `yaml:"skip_output_scan" env:"SKIP_OUTPUT_SCAN"`

	// BatchLimit caps the items a batch node processes. 0 means no cap.
	// A workflow-level batch_limit takes precedence when set.
	BatchLimit int `yaml:"batch_limit" env:"BATCH_LIMIT"`

	// MaxHops bounds edge traversals in one run to break dispatch cycles.
	MaxHops int `yaml:"max_hops" env:"MAX_HOPS"`

	// MaxConcurrentRuns bounds runs executing at once through a Runner.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" env:"MAX_CONCURRENT_RUNS"`

	// NodeTimeout caps a single node dispatch. 0 means no deadline.
	NodeTimeout time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`

	// ShellAllowlist names the commands the shell node may execute.
	// Empty means the shell node refuses everything.
	ShellAllowlist []string `yaml:"shell_allowlist" env:"SHELL_ALLOWLIST"`
}

// LLMConfig configures the chat-completion provider.
type LLMConfig struct {
	// Provider name. Only "openai" (and OpenAI-compatible endpoints
	// via BaseURL) is built in.
	Provider string `yaml:"provider" env:"PROVIDER"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key" env:"API_KEY"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// Model is the default model when a node names none.
	Model string `yaml:"model" env:"MODEL"`

	// Timeout bounds one completion request.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// RateLimitRPS throttles requests per second. 0 disables the limiter.
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`

	// RateLimitBurst is the limiter burst size.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// Cache serves repeated completions from redis instead of the
	// provider.
	Cache ResponseCacheConfig `yaml:"cache" env:"CACHE"`
}

// ResponseCacheConfig configures the completion response cache.
type ResponseCacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// TTL bounds how long a cached response keeps being served.
	TTL time.Duration `yaml:"ttl" env:"TTL"`

	// Redis holds connection settings for the cache.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend" env:"BACKEND"`

	// TTL expires saved checkpoints on backends that support it.
	TTL time.Duration `yaml:"ttl" env:"TTL"`

	// Redis holds connection settings for the redis backend.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// HistoryConfig configures the run-history database.
type HistoryConfig struct {
	// Enabled turns run persistence on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Driver is "sqlite", "postgres", or "mysql".
	Driver string `yaml:"driver" env:"DRIVER"`

	// DSN is the driver connection string. For sqlite it is a file path.
	DSN string `yaml:"dsn" env:"DSN"`
}

// TraceConfig configures trace artifact output.
type TraceConfig struct {
	// Enabled turns artifact writing on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Dir is where run-<id>.json artifacts land.
	Dir string `yaml:"dir" env:"DIR"`

	// MaxStringLen truncates recorded string values. 0 means unlimited.
	MaxStringLen int `yaml:"max_string_len" env:"MAX_STRING_LEN"`

	// MaxListItems caps recorded list lengths. 0 means unlimited.
	MaxListItems int `yaml:"max_list_items" env:"MAX_LIST_ITEMS"`

	// MaxMapKeys caps recorded map sizes. 0 means unlimited.
	MaxMapKeys int `yaml:"max_map_keys" env:"MAX_MAP_KEYS"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`

	// OutputPaths are zap sink URLs. Defaults to stderr so that run
	// results on stdout stay machine-readable.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`

	EnableCaller     bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// Merge overlays other onto c. Non-zero fields in other win; zero fields
// leave c untouched.
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}
	if err := mergo.Merge(c, other, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging config: %w", err)
	}
	return nil
}

// Validate checks enum and range constraints.
func (c *Config) Validate() error {
	var errs []string

	switch c.Run.TemplateResolutionMode {
	case "strict", "permissive":
	default:
		errs = append(errs, fmt.Sprintf("run.template_resolution_mode must be strict or permissive, got %q", c.Run.TemplateResolutionMode))
	}
	if c.Run.BatchLimit < 0 {
		errs = append(errs, "run.batch_limit must not be negative")
	}
	if c.Run.MaxHops <= 0 {
		errs = append(errs, "run.max_hops must be positive")
	}
	if c.Run.MaxConcurrentRuns <= 0 {
		errs = append(errs, "run.max_concurrent_runs must be positive")
	}
	if c.Run.NodeTimeout < 0 {
		errs = append(errs, "run.node_timeout must not be negative")
	}

	if c.LLM.Timeout <= 0 {
		errs = append(errs, "llm.timeout must be positive")
	}
	if c.LLM.RateLimitRPS < 0 {
		errs = append(errs, "llm.rate_limit_rps must not be negative")
	}
	if c.LLM.Cache.TTL < 0 {
		errs = append(errs, "llm.cache.ttl must not be negative")
	}
	if c.LLM.Cache.Enabled && c.LLM.Cache.Redis.Addr == "" {
		errs = append(errs, "llm.cache.redis.addr is required when the cache is enabled")
	}

	switch c.Checkpoint.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("checkpoint.backend must be memory or redis, got %q", c.Checkpoint.Backend))
	}

	switch c.History.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("history.driver must be sqlite, postgres, or mysql, got %q", c.History.Driver))
	}

	if c.Trace.MaxStringLen < 0 || c.Trace.MaxListItems < 0 || c.Trace.MaxMapKeys < 0 {
		errs = append(errs, "trace limits must not be negative")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/cascadeflow/cascade/checkpoint"
	"github.com/cascadeflow/cascade/config"
	"github.com/cascadeflow/cascade/internal/cache"
	"github.com/cascadeflow/cascade/llm"
	"github.com/cascadeflow/cascade/toolnode"
	"github.com/cascadeflow/cascade/types"
)

// initLogger builds the zap logger from config. Logs go to stderr by
// default so run results on stdout stay machine-readable.
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// parseInputs merges repeated key=value flags with an optional JSON
// object. The JSON argument is either inline or @path to a file; its
// values keep their types, while key=value pairs arrive as strings.
func parseInputs(pairs []string, jsonArg string) (map[string]types.Value, error) {
	inputs := make(map[string]types.Value)

	if jsonArg != "" {
		data := []byte(jsonArg)
		if strings.HasPrefix(jsonArg, "@") {
			var err error
			data, err = os.ReadFile(strings.TrimPrefix(jsonArg, "@"))
			if err != nil {
				return nil, fmt.Errorf("reading inputs file: %w", err)
			}
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing inputs JSON: %w", err)
		}
		parsed, err := types.FromAnyMap(raw)
		if err != nil {
			return nil, fmt.Errorf("converting inputs: %w", err)
		}
		for k, v := range parsed {
			inputs[k] = v
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, want key=value", pair)
		}
		inputs[key] = types.NewString(value)
	}

	if len(inputs) == 0 {
		return nil, nil
	}
	return inputs, nil
}

// loadToolServers reads MCP server definitions from a YAML or JSON file.
func loadToolServers(path string) ([]toolnode.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool server config: %w", err)
	}
	var servers []toolnode.ServerConfig
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &servers)
	default:
		err = json.Unmarshal(data, &servers)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing tool server config %s: %w", path, err)
	}
	return servers, nil
}

// buildProvider assembles the configured LLM provider with its
// middleware stack. Returns nil when no provider is configured, which
// leaves llm_generate nodes unavailable.
func buildProvider(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, func(), error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, nil, nil
	}

	provider := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})

	var closer func()
	mws := []llm.Middleware{llm.WithLogging(logger)}
	if cfg.Cache.Enabled {
		mgr, err := cache.NewManager(cache.Config{
			Addr:         cfg.Cache.Redis.Addr,
			Password:     cfg.Cache.Redis.Password,
			DB:           cfg.Cache.Redis.DB,
			DefaultTTL:   cfg.Cache.TTL,
			PoolSize:     cfg.Cache.Redis.PoolSize,
			MinIdleConns: cfg.Cache.Redis.MinIdleConns,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening response cache: %w", err)
		}
		closer = func() { _ = mgr.Close() }
		mws = append(mws, llm.WithCache(mgr, cfg.Cache.TTL))
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		mws = append(mws, llm.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, llm.WithTimeout(cfg.Timeout))
	}
	mws = append(mws, llm.WithUsageCapture(llm.NewEstimator(), llm.DefaultPricing(), false))

	return llm.Apply(provider, mws...), closer, nil
}

// openCheckpoints builds the checkpoint store named by config. The
// returned closer is non-nil for backends holding connections.
func openCheckpoints(cfg config.CheckpointConfig, logger *zap.Logger) (checkpoint.Store, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return checkpoint.NewMemory(), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		closer := func() { _ = client.Close() }
		return checkpoint.NewRedis(client, cfg.TTL, logger), closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

func formatDuration(ms int64) string {
	return time.Duration(ms * int64(time.Millisecond)).Truncate(time.Millisecond).String()
}

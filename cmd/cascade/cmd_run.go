// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/builtin"
	"github.com/cascadeflow/cascade/config"
	"github.com/cascadeflow/cascade/engine"
	"github.com/cascadeflow/cascade/internal/metrics"
	"github.com/cascadeflow/cascade/internal/server"
	"github.com/cascadeflow/cascade/internal/telemetry"
	"github.com/cascadeflow/cascade/ir"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/toolnode"
	"github.com/cascadeflow/cascade/trace"
)

var runFlags struct {
	configPath string
	inputs     []string
	inputsJSON string
	mode       string
	batchLimit int
	maxHops    int
	skipScan   []string
	baseDir    string
	traceDir   string
	mcpConfig  string
}

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Execute a workflow definition",
	Long: `Run loads a workflow from a YAML or JSON file, executes it, and prints
the result as JSON on stdout. Logs go to stderr.

Inputs can be passed as repeated --input key=value flags (string values)
or as a JSON object via --inputs-json, inline or @path to a file.

Usage:
  cascade run flow.yaml --input topic=go
  cascade run flow.yaml --inputs-json '{"topic":"go","depth":2}'
  cascade run flow.yaml --inputs-json @inputs.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.configPath, "config", "c", "", "Path to cascade.yaml config file")
	f.StringArrayVarP(&runFlags.inputs, "input", "i", nil, "Workflow input as key=value (repeatable)")
	f.StringVar(&runFlags.inputsJSON, "inputs-json", "", "Workflow inputs as a JSON object, inline or @file")
	f.StringVar(&runFlags.mode, "mode", "", "Template resolution mode: strict or permissive")
	f.IntVar(&runFlags.batchLimit, "batch-limit", 0, "Cap on batch node items, 0 for unlimited")
	f.IntVar(&runFlags.maxHops, "max-hops", 0, "Cap on edge traversals per run")
	f.StringSliceVar(&runFlags.skipScan, "skip-output-scan", nil, "Node IDs or types exempt from the unresolved-template output scan")
	f.StringVar(&runFlags.baseDir, "base-dir", "", "Base directory for file nodes and subflows (default: workflow file directory)")
	f.StringVar(&runFlags.traceDir, "trace-dir", "", "Directory for run trace artifacts")
	f.StringVar(&runFlags.mcpConfig, "mcp-servers", "", "Path to MCP tool server definitions (YAML or JSON)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().WithConfigPath(runFlags.configPath).Load()
	if err != nil {
		return err
	}
	applyRunOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	wf, err := ir.Load(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		providers, terr := telemetry.Init(cfg.Telemetry, logger)
		if terr != nil {
			logger.Warn("telemetry init failed", zap.Error(terr))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if serr := providers.Shutdown(shutdownCtx); serr != nil {
					logger.Warn("telemetry shutdown failed", zap.Error(serr))
				}
			}()
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("cascade", logger)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mgr := server.NewManager(mux, server.Config{Addr: cfg.Metrics.Addr}, logger)
		if merr := mgr.Start(); merr != nil {
			logger.Warn("metrics endpoint unavailable", zap.Error(merr))
		} else {
			defer func() { _ = mgr.Shutdown(context.Background()) }()
		}
	}

	reg := registry.New()
	if err := builtin.RegisterAll(reg); err != nil {
		return err
	}
	if runFlags.mcpConfig != "" {
		servers, serr := loadToolServers(runFlags.mcpConfig)
		if serr != nil {
			return serr
		}
		resolver := toolnode.NewResolver(servers, toolnode.Options{Logger: logger})
		defer func() { _ = resolver.Close() }()
		reg.AddDynamic(resolver)
	}

	checkpoints, closeCheckpoints, err := openCheckpoints(cfg.Checkpoint, logger)
	if err != nil {
		return err
	}
	if closeCheckpoints != nil {
		defer closeCheckpoints()
	}

	var history *trace.History
	if cfg.History.Enabled {
		history, err = trace.OpenHistory(trace.HistoryConfig{
			Driver: cfg.History.Driver,
			DSN:    cfg.History.DSN,
		}, logger)
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()
	}

	traceDir := ""
	if cfg.Trace.Enabled {
		traceDir = cfg.Trace.Dir
	}

	baseDir := runFlags.baseDir
	if baseDir == "" {
		baseDir = filepath.Dir(args[0])
	}

	mode, err := template.ParseMode(cfg.Run.TemplateResolutionMode)
	if err != nil {
		return err
	}

	provider, closeCache, err := buildProvider(cfg.LLM, logger)
	if err != nil {
		return err
	}
	if closeCache != nil {
		defer closeCache()
	}

	eng := engine.New(reg, engine.Options{
		Mode:           mode,
		Namespacing:    cfg.Run.Namespacing,
		BatchLimit:     cfg.Run.BatchLimit,
		MaxHops:        cfg.Run.MaxHops,
		NodeTimeout:    cfg.Run.NodeTimeout,
		SkipOutputScan: cfg.Run.SkipOutputScan,
		Checkpoints:    checkpoints,
		TraceDir:       traceDir,
		TraceLimits: trace.Limits{
			MaxStringLen: cfg.Trace.MaxStringLen,
			MaxListItems: cfg.Trace.MaxListItems,
			MaxMapKeys:   cfg.Trace.MaxMapKeys,
		},
		History: history,
		Metrics: collector,
		Env: registry.Env{
			Logger:         logger,
			LLM:            provider,
			BaseDir:        baseDir,
			ShellAllowlist: cfg.Run.ShellAllowlist,
		},
		Logger: logger,
	})

	inputs, err := parseInputs(runFlags.inputs, runFlags.inputsJSON)
	if err != nil {
		return err
	}

	res, err := eng.Run(ctx, wf, inputs)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !res.Success {
		cmd.SilenceUsage = true
		return fmt.Errorf("run %s finished %s", res.RunID, res.Status)
	}
	return nil
}

// applyRunOverrides lets explicitly set flags win over the config file.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Run.TemplateResolutionMode = runFlags.mode
	}
	if f.Changed("batch-limit") {
		cfg.Run.BatchLimit = runFlags.batchLimit
	}
	if f.Changed("max-hops") {
		cfg.Run.MaxHops = runFlags.maxHops
	}
	if f.Changed("skip-output-scan") {
		cfg.Run.SkipOutputScan = runFlags.skipScan
	}
	if f.Changed("trace-dir") {
		cfg.Trace.Enabled = true
		cfg.Trace.Dir = runFlags.traceDir
	}
}

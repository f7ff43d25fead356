// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascadeflow/cascade/builtin"
	"github.com/cascadeflow/cascade/config"
	"github.com/cascadeflow/cascade/engine"
	"github.com/cascadeflow/cascade/ir"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/toolnode"
)

var validateFlags struct {
	configPath string
	mcpConfig  string
}

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file>",
	Short: "Compile a workflow without executing it",
	Long: `Validate parses and compiles a workflow: node types resolve against the
registry, edge actions bind, and under namespacing every template
reference must point at a producible store path. Nothing executes.

Workflows using mcp: node types need --mcp-servers so the tool shapes
can be discovered.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.StringVarP(&validateFlags.configPath, "config", "c", "", "Path to cascade.yaml config file")
	f.StringVar(&validateFlags.mcpConfig, "mcp-servers", "", "Path to MCP tool server definitions (YAML or JSON)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().WithConfigPath(validateFlags.configPath).Load()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	wf, err := ir.Load(args[0])
	if err != nil {
		return err
	}

	reg := registry.New()
	if err := builtin.RegisterAll(reg); err != nil {
		return err
	}
	if validateFlags.mcpConfig != "" {
		servers, serr := loadToolServers(validateFlags.mcpConfig)
		if serr != nil {
			return serr
		}
		resolver := toolnode.NewResolver(servers, toolnode.Options{Logger: logger})
		defer func() { _ = resolver.Close() }()
		reg.AddDynamic(resolver)
	}

	mode, err := template.ParseMode(cfg.Run.TemplateResolutionMode)
	if err != nil {
		return err
	}

	eng := engine.New(reg, engine.Options{
		Mode:        mode,
		Namespacing: cfg.Run.Namespacing,
		Logger:      logger,
	})

	compiled, err := eng.Compile(cmd.Context(), wf)
	if err != nil {
		cmd.SilenceUsage = true
		return fmt.Errorf("%s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d nodes, %d edges, mode %s)\n",
		compiled.Workflow.Name, len(wf.Nodes), len(wf.Edges), compiled.Mode())
	return nil
}

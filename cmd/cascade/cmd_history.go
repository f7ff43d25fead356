// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cascadeflow/cascade/config"
	"github.com/cascadeflow/cascade/trace"
)

var historyFlags struct {
	configPath string
	driver     string
	dsn        string
	workflow   string
	limit      int
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List persisted runs or show one run's node outcomes",
	Long: `History reads the run database written when history is enabled. With no
argument it lists recent runs; with a run ID it shows that run's node
outcomes.

The database comes from the config file, or directly via --driver and
--dsn.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVarP(&historyFlags.configPath, "config", "c", "", "Path to cascade.yaml config file")
	f.StringVar(&historyFlags.driver, "driver", "", "History database driver: sqlite, postgres, or mysql")
	f.StringVar(&historyFlags.dsn, "dsn", "", "History database DSN (a file path for sqlite)")
	f.StringVar(&historyFlags.workflow, "workflow", "", "Only list runs of this workflow")
	f.IntVar(&historyFlags.limit, "limit", 20, "Maximum runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().WithConfigPath(historyFlags.configPath).Load()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	histCfg := trace.HistoryConfig{Driver: cfg.History.Driver, DSN: cfg.History.DSN}
	if historyFlags.driver != "" {
		histCfg.Driver = historyFlags.driver
	}
	if historyFlags.dsn != "" {
		histCfg.DSN = historyFlags.dsn
	}

	history, err := trace.OpenHistory(histCfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = history.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		run, nodes, err := history.Run(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Run:      %s\n", run.ID)
		fmt.Fprintf(out, "Workflow: %s\n", run.Workflow)
		fmt.Fprintf(out, "Status:   %s\n", run.Status)
		fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Duration: %s\n", formatDuration(run.DurationMS))
		if run.TotalTokens > 0 {
			fmt.Fprintf(out, "LLM:      %d tokens, $%.4f\n", run.TotalTokens, run.CostUSD)
		}
		if run.Error != "" {
			fmt.Fprintf(out, "Error:    %s\n", run.Error)
		}
		fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Node\tType\tAttempt\tOutcome\tAction\tDuration\n")
		fmt.Fprintf(w, "----\t----\t-------\t-------\t------\t--------\n")
		for _, n := range nodes {
			outcome := "ok"
			switch {
			case n.Skipped:
				outcome = "skipped"
			case !n.Success:
				outcome = "failed"
			}
			action := n.Action
			if action == "" {
				action = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				n.NodeID, n.Type, n.Attempt, outcome, action, formatDuration(n.DurationMS))
		}
		return w.Flush()
	}

	runs, err := history.Recent(ctx, historyFlags.workflow, historyFlags.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Run\tWorkflow\tStatus\tStarted\tDuration\tNodes\tErrors\n")
	fmt.Fprintf(w, "---\t--------\t------\t-------\t--------\t-----\t------\n")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			run.ID, run.Workflow, run.Status,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			formatDuration(run.DurationMS), run.Nodes, run.Errors)
	}
	return w.Flush()
}

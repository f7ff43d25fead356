// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/cascadeflow/cascade/trace"
)

var traceFlags struct {
	dir     string
	rawJSON bool
}

var traceCmd = &cobra.Command{
	Use:   "trace <artifact-file | run-id>",
	Short: "Pretty-print a run trace artifact",
	Long: `Trace renders the per-node timeline of a finished run. The argument is
either a path to a run-<id>.json artifact or a run ID resolved against
--dir.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	f := traceCmd.Flags()
	f.StringVar(&traceFlags.dir, "dir", "", "Trace directory for resolving a run ID")
	f.BoolVar(&traceFlags.rawJSON, "json", false, "Print the raw artifact JSON instead of the summary")
}

func runTrace(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil && traceFlags.dir != "" {
		path = trace.FilePath(traceFlags.dir, args[0])
	}

	artifact, err := trace.ReadArtifact(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if traceFlags.rawJSON {
		data, merr := json.MarshalIndent(artifact, "", "  ")
		if merr != nil {
			return merr
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Run:      %s\n", artifact.RunID)
	if artifact.Workflow != "" {
		fmt.Fprintf(out, "Workflow: %s\n", artifact.Workflow)
	}
	fmt.Fprintf(out, "Status:   %s\n", artifact.FinalStatus)
	fmt.Fprintf(out, "Started:  %s\n", artifact.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Duration: %s\n", formatDuration(artifact.Summary.DurationMS))
	if artifact.Summary.Usage.Calls > 0 {
		fmt.Fprintf(out, "LLM:      %d calls, %d tokens, $%.4f\n",
			artifact.Summary.Usage.Calls,
			artifact.Summary.Usage.TotalTokens,
			artifact.Summary.Usage.CostUSD)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Node\tType\tAttempt\tOutcome\tAction\tDuration\n")
	fmt.Fprintf(w, "----\t----\t-------\t-------\t------\t--------\n")
	for _, ev := range artifact.Nodes {
		outcome := "ok"
		switch {
		case ev.Skipped:
			outcome = "skipped"
		case !ev.Success:
			outcome = "failed"
		}
		action := ev.Action
		if action == "" {
			action = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			ev.NodeID, ev.Type, ev.Attempt, outcome, action, formatDuration(ev.DurationMS))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(artifact.Warnings) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Warnings:")
		for _, warn := range artifact.Warnings {
			fmt.Fprintf(out, "  [%s] %s\n", warn.Code, warn.Message)
		}
	}
	if len(artifact.Errors) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Errors:")
		for _, runErr := range artifact.Errors {
			fmt.Fprintf(out, "  [%s] %s\n", runErr.Category, runErr.Message)
		}
	}
	return nil
}

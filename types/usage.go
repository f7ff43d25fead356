// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package types

import "time"

// LLMCallRecord captures one model invocation. Records accumulate on the
// run in call order and are never overwritten: a node that calls the model
// three times contributes three records.
type LLMCallRecord struct {
	ID     string `json:"id"`
	NodeID string `json:"node_id,omitempty"`

	// Planner marks calls made by the planning loop rather than a
	// workflow node.
	Planner      bool      `json:"planner,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model"`
	Prompt       string    `json:"prompt,omitempty"`
	Response     string    `json:"response,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	CostUSD      float64   `json:"cost_usd,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	StartedAt    time.Time `json:"started_at"`
	Error        string    `json:"error,omitempty"`
}

// UsageTotals aggregates call records for the run summary.
type UsageTotals struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add folds one record into the totals.
func (t *UsageTotals) Add(rec LLMCallRecord) {
	t.Calls++
	t.InputTokens += rec.InputTokens
	t.OutputTokens += rec.OutputTokens
	t.TotalTokens += rec.TotalTokens
	t.CostUSD += rec.CostUSD
}

// MetricsSummary is the per-run roll-up embedded in the trace artifact and
// returned with the run result.
type MetricsSummary struct {
	NodesExecuted int         `json:"nodes_executed"`
	NodesSkipped  int         `json:"nodes_skipped"`
	Retries       int         `json:"retries"`
	Warnings      int         `json:"warnings"`
	Errors        int         `json:"errors"`
	Usage         UsageTotals `json:"usage"`
	DurationMS    int64       `json:"duration_ms"`
}

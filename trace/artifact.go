// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package trace produces the run's observable record: a JSON artifact file
with one event per node dispatch, and a relational history of run
summaries for querying past runs.

Everything embedded in the artifact passes through Limits first, so huge
prompts, binary file contents, and oversized store values never bloat the
file.
*/
package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/types"
)

// FormatVersion identifies the artifact schema.
const FormatVersion = 1

// Artifact is the per-run trace file.
type Artifact struct {
	FormatVersion int                  `json:"format_version"`
	RunID         string               `json:"run_id"`
	Workflow      string               `json:"workflow,omitempty"`
	FinalStatus   types.RunStatus      `json:"final_status"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    time.Time            `json:"finished_at"`
	Nodes         []Event              `json:"nodes"`
	Warnings      []types.RunWarning   `json:"warnings,omitempty"`
	Errors        []*types.RunError    `json:"errors,omitempty"`
	Summary       types.MetricsSummary `json:"summary"`
}

// Event is one node dispatch.
type Event struct {
	NodeID     string                 `json:"node_id"`
	Type       string                 `json:"type,omitempty"`
	Attempt    int                    `json:"attempt"`
	Skipped    bool                   `json:"skipped,omitempty"`
	Success    bool                   `json:"success"`
	Action     string                 `json:"action,omitempty"`
	ParamHash  string                 `json:"param_hash,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	DurationMS int64                  `json:"duration_ms"`
	StoreDiff  map[string]types.Value `json:"store_diff,omitempty"`
	LLMCalls   []types.LLMCallRecord  `json:"llm_calls,omitempty"`
	Warnings   []types.RunWarning     `json:"warnings,omitempty"`
	Error      *types.RunError        `json:"error,omitempty"`
}

// Recorder accumulates events as the engine dispatches nodes. It
// implements node.Observer; the mutex exists because trace consumers may
// snapshot while a run is in flight.
type Recorder struct {
	mu       sync.Mutex
	limits   Limits
	artifact Artifact
}

// NewRecorder starts an artifact for one run.
func NewRecorder(runID, workflow string, limits Limits) *Recorder {
	return &Recorder{
		limits: limits,
		artifact: Artifact{
			FormatVersion: FormatVersion,
			RunID:         runID,
			Workflow:      workflow,
			FinalStatus:   types.RunRunning,
			StartedAt:     time.Now(),
		},
	}
}

// NodeDispatched implements node.Observer.
func (r *Recorder) NodeDispatched(rec node.DispatchRecord) {
	ev := Event{
		NodeID:     rec.NodeID,
		Type:       rec.Type,
		Attempt:    rec.Attempt,
		Skipped:    rec.Skipped,
		Success:    rec.Err == nil,
		Action:     rec.Action,
		ParamHash:  rec.ParamHash,
		StartedAt:  rec.StartedAt,
		DurationMS: rec.Duration.Milliseconds(),
		StoreDiff:  r.limits.Diff(rec.StoreDiff),
		LLMCalls:   r.limits.Calls(rec.Usage),
		Warnings:   rec.Warnings,
		Error:      rec.Err,
	}
	r.mu.Lock()
	r.artifact.Nodes = append(r.artifact.Nodes, ev)
	r.mu.Unlock()
}

// Finish seals the artifact with the run outcome and returns it.
func (r *Recorder) Finish(status types.RunStatus, warnings []types.RunWarning, errs []*types.RunError, summary types.MetricsSummary) *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifact.FinalStatus = status
	r.artifact.FinishedAt = time.Now()
	r.artifact.Warnings = warnings
	r.artifact.Errors = errs
	r.artifact.Summary = summary
	a := r.artifact
	a.Nodes = append([]Event(nil), r.artifact.Nodes...)
	return &a
}

// WriteFile writes the artifact as indented JSON, creating parent
// directories as needed.
func (a *Artifact) WriteFile(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trace artifact: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating trace directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing trace artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads an artifact file.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decoding trace artifact: %w", err)
	}
	return &a, nil
}

// FilePath names the artifact file for a run inside dir.
func FilePath(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("run-%s.json", runID))
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

// Package ctxkeys defines the context keys that correlate work back to a
// workflow run. The usage interceptor and telemetry rely on these when a
// shared client is called from code that has no other handle on the run.
package ctxkeys

import "context"

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	workflowKey contextKey = "workflow"
	nodeIDKey   contextKey = "node_id"
)

// WithRunID tags the context with the run ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run ID, if any.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithWorkflow tags the context with the workflow name.
func WithWorkflow(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workflowKey, name)
}

// Workflow returns the workflow name, if any.
func Workflow(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(workflowKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithNodeID tags the context with the node currently being dispatched.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDKey, nodeID)
}

// NodeID returns the dispatching node ID, if any.
func NodeID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(nodeIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

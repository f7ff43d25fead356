// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package node

import (
	"time"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/checkpoint"
	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/types"
	"github.com/cascadeflow/cascade/usage"
)

// Options carries everything the wrappers need beyond the core itself.
// The engine fills one Options per node per run.
type Options struct {
	// Type is the node's registered type name, recorded on dispatches.
	Type string

	// RawParams are the node's parameters as authored, template text
	// included. TemplateAware resolves them on every dispatch;
	// Instrumented resolves them once more to compute the checkpoint
	// parameter hash. Resolution is read-only, so doing it twice is safe.
	RawParams map[string]types.Value

	Resolver *template.Resolver
	Mode     template.Mode

	// Namespacing scopes the core's writes to the node's own namespace.
	Namespacing bool

	// Checkpoints enables hash-keyed skip and restore when non-nil.
	Checkpoints checkpoint.Store
	ResumeKey   string

	// SkipOutputScan disables the unresolved-template scan over outputs,
	// for nodes whose legitimate output contains literal ${...} text.
	SkipOutputScan bool

	Collector *usage.Collector
	Observer  Observer
	Logger    *zap.Logger
}

// Observer receives one record per node dispatch, skips and failures
// included. The engine's trace and metrics sinks hang off this.
type Observer interface {
	NodeDispatched(rec DispatchRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec DispatchRecord)

// NodeDispatched implements Observer.
func (f ObserverFunc) NodeDispatched(rec DispatchRecord) { f(rec) }

// DispatchRecord describes one pass through the wrapper chain.
type DispatchRecord struct {
	NodeID  string
	Type    string
	Attempt int

	// Skipped marks a checkpoint hit: the core did not run and Action
	// and Output were restored from the saved record.
	Skipped   bool
	ParamHash string

	Action    string
	StartedAt time.Time
	Duration  time.Duration

	Err      *types.RunError
	Warnings []types.RunWarning

	// Output is the node's namespace content after the dispatch, or the
	// root keys it changed when namespacing is off.
	Output types.Value

	// StoreDiff maps changed root keys to their new values, deletions to
	// null.
	StoreDiff map[string]types.Value

	// Usage lists the LLM calls attributed to this dispatch, in call
	// order.
	Usage []types.LLMCallRecord

	// Unresolved lists template expressions found in the output, when
	// the scan ran.
	Unresolved []template.Hit
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package node defines the execution contract for workflow nodes and the
wrapper chain every compiled node is dispatched through.

The chain order is fixed:

	Instrumented -> Namespaced -> TemplateAware -> Core

Instrumented sits outermost so its observations cover everything beneath
it: it sees the full store for usage capture and store diffs, handles
checkpoint skips, and classifies failures. Namespaced narrows the store
view so the core's writes land in the node's own namespace. TemplateAware
resolves ${...} references in the raw parameters immediately before the
core runs, reaching across namespaces through the view's bridge, which is
the only sanctioned cross-namespace path. Reordering the chain breaks
observable behavior; Wrap is the single place the order is encoded.
*/
package node

import (
	"context"

	"github.com/cascadeflow/cascade/store"
	"github.com/cascadeflow/cascade/types"
)

// Result is what a node dispatch produces: the edge action to follow and
// any warnings raised along the way. An empty action means the engine's
// default action.
type Result struct {
	Action   string
	Warnings []types.RunWarning
}

// Node is the dispatch interface. Every wrapper implements it, so wrappers
// compose; the engine only ever holds the outermost one.
type Node interface {
	ID() string
	Run(ctx context.Context, view *store.View) (Result, error)
}

// Call is what a Core receives: fully resolved parameters and the node's
// own store view. Cores read inputs from Params, write outputs through
// Store, and must not reach beyond their view.
type Call struct {
	Params map[string]types.Value
	Store  *store.View
}

// Param returns a resolved parameter.
func (c *Call) Param(key string) (types.Value, bool) {
	v, ok := c.Params[key]
	return v, ok
}

// StringParam returns a string parameter, with ok false when absent or of
// another kind.
func (c *Call) StringParam(key string) (string, bool) {
	v, ok := c.Params[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Core is the adapter contract concrete node types implement. A Core never
// sees raw template text and never chooses its own namespace: both are
// handled by the wrappers above it.
type Core interface {
	Exec(ctx context.Context, call *Call) (Result, error)
}

// CoreFunc adapts a plain function to Core.
type CoreFunc func(ctx context.Context, call *Call) (Result, error)

// Exec implements Core.
func (f CoreFunc) Exec(ctx context.Context, call *Call) (Result, error) {
	return f(ctx, call)
}

// Wrap assembles the standard chain around a core. The order here is the
// chain invariant; nothing else composes wrappers.
func Wrap(id string, core Core, opts Options) Node {
	ta := NewTemplateAware(id, core, opts)
	ns := NewNamespaced(id, ta, opts.Namespacing)
	return NewInstrumented(id, ns, opts)
}

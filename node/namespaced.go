// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package node

import (
	"context"

	"github.com/cascadeflow/cascade/store"
)

// Namespaced narrows the store view so the inner node's writes land under
// the node's own namespace. Reads still fall back to the root, and
// template resolution below still reaches every namespace through the
// bridge. With namespacing disabled it passes the view through unchanged,
// which reproduces the flat shared-store behavior.
type Namespaced struct {
	id      string
	inner   Node
	enabled bool
}

// NewNamespaced wraps inner with store scoping.
func NewNamespaced(id string, inner Node, enabled bool) *Namespaced {
	return &Namespaced{id: id, inner: inner, enabled: enabled}
}

// ID implements Node.
func (n *Namespaced) ID() string { return n.id }

// Run implements Node.
func (n *Namespaced) Run(ctx context.Context, view *store.View) (Result, error) {
	return n.inner.Run(ctx, view.Narrow(n.id, n.enabled))
}

var _ Node = (*Namespaced)(nil)

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package store

import "github.com/cascadeflow/cascade/types"

// View is what a node sees of the store. With namespacing on, writes land
// in the node's namespace and reads check the namespace first, falling back
// to the root so injected workflow inputs stay visible. With namespacing
// off the view is a plain passthrough to the root, which is the legacy
// single-namespace behavior.
type View struct {
	shared *Shared
	ns     string
	scoped bool
}

// NewView creates the root view the engine hands to the outermost wrapper.
// It is unscoped: Narrow establishes the namespace once dispatch reaches
// the namespacing wrapper.
func NewView(s *Shared) *View {
	return &View{shared: s}
}

// Narrow binds the view to a node's namespace. When enabled is false the
// returned view keeps root semantics and only remembers the namespace name
// for attribution.
func (v *View) Narrow(ns string, enabled bool) *View {
	return &View{shared: v.shared, ns: ns, scoped: enabled}
}

// Namespace returns the namespace this view is bound to, or "" for the
// root view.
func (v *View) Namespace() string { return v.ns }

// Scoped reports whether writes are being redirected into the namespace.
func (v *View) Scoped() bool { return v.scoped }

// Set writes a key. Scoped views write into the namespace; unscoped views
// write at the root.
func (v *View) Set(key string, val types.Value) {
	if v.scoped {
		v.shared.SetIn(v.ns, key, val)
		return
	}
	v.shared.Set(key, val)
}

// Get reads a key: namespace first, then root fallback.
func (v *View) Get(key string) (types.Value, bool) {
	if v.scoped {
		if val, ok := v.shared.GetIn(v.ns, key); ok {
			return val, true
		}
	}
	return v.shared.Get(key)
}

// Bridge exposes the full shared store. Template resolution is the single
// sanctioned cross-namespace path, and this is where it crosses; node
// adapters must not touch it.
func (v *View) Bridge() *Shared { return v.shared }

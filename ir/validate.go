// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package ir

import (
	"strings"

	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/types"
)

// Validate checks the schema rules that hold independent of any registry:
// version, node identity, edge referential integrity, reachability from
// the entry node, retry bounds, output sources, and the resolution mode
// enum. Type resolution and static template checks happen at compile.
func (w *Workflow) Validate() error {
	if w.Version != Version {
		return types.Errorf(types.CategoryCompile,
			"ir_version %d not supported, this runtime reads version %d", w.Version, Version)
	}
	if len(w.Nodes) == 0 {
		return types.Errorf(types.CategoryCompile, "workflow has no nodes")
	}

	seen := make(map[string]struct{}, len(w.Nodes))
	for i, n := range w.Nodes {
		if n.ID == "" {
			return types.Errorf(types.CategoryCompile, "node at index %d has empty id", i)
		}
		if !validIdent(n.ID) {
			return types.Errorf(types.CategoryCompile,
				"node id %q is not a valid identifier", n.ID).WithNode(n.ID)
		}
		if n.Type == "" {
			return types.Errorf(types.CategoryCompile,
				"node %q has empty type", n.ID).WithNode(n.ID)
		}
		if _, dup := seen[n.ID]; dup {
			return types.Errorf(types.CategoryCompile,
				"duplicate node id %q", n.ID).WithNode(n.ID)
		}
		seen[n.ID] = struct{}{}
		if n.Retry != nil {
			if n.Retry.MaxAttempts < 0 {
				return types.Errorf(types.CategoryCompile,
					"node %q: retry max_attempts must not be negative", n.ID).WithNode(n.ID)
			}
			if n.Retry.DelayMS < 0 {
				return types.Errorf(types.CategoryCompile,
					"node %q: retry delay_ms must not be negative", n.ID).WithNode(n.ID)
			}
		}
	}

	for name := range w.Inputs {
		if !validIdent(name) {
			return types.Errorf(types.CategoryCompile,
				"input name %q is not a valid identifier", name)
		}
		if _, clash := seen[name]; clash {
			return types.Errorf(types.CategoryCompile,
				"input %q collides with a node id; inputs and node namespaces share the store root", name)
		}
	}

	routes := make(map[string]map[string]struct{}, len(w.Nodes))
	for i, e := range w.Edges {
		if _, ok := seen[e.From]; !ok {
			return types.Errorf(types.CategoryCompile,
				"edge %d references unknown node %q in from", i, e.From)
		}
		if _, ok := seen[e.To]; !ok {
			return types.Errorf(types.CategoryCompile,
				"edge %d references unknown node %q in to", i, e.To)
		}
		action := e.Action
		if action == "" {
			action = DefaultAction
		}
		if routes[e.From] == nil {
			routes[e.From] = make(map[string]struct{})
		}
		if _, dup := routes[e.From][action]; dup {
			return types.Errorf(types.CategoryCompile,
				"node %q has more than one edge for action %q", e.From, action).WithNode(e.From)
		}
		routes[e.From][action] = struct{}{}
	}

	if orphans := w.unreachable(); len(orphans) > 0 {
		return types.Errorf(types.CategoryCompile,
			"nodes unreachable from entry %q: %s", w.Nodes[0].ID, strings.Join(orphans, ", "))
	}

	for name, out := range w.Outputs {
		if out.Source == "" {
			return types.Errorf(types.CategoryCompile,
				"output %q has no source; outputs surface store values and need one", name)
		}
	}

	if _, err := template.ParseMode(w.TemplateResolutionMode); err != nil {
		return types.Errorf(types.CategoryCompile, "%v", err)
	}
	return nil
}

// unreachable returns, in declaration order, the nodes no edge path
// connects to the entry node.
func (w *Workflow) unreachable() []string {
	if len(w.Nodes) == 0 {
		return nil
	}
	next := make(map[string][]string, len(w.Edges))
	for _, e := range w.Edges {
		next[e.From] = append(next[e.From], e.To)
	}
	reached := map[string]struct{}{w.Nodes[0].ID: {}}
	frontier := []string{w.Nodes[0].ID}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, to := range next[id] {
			if _, ok := reached[to]; ok {
				continue
			}
			reached[to] = struct{}{}
			frontier = append(frontier, to)
		}
	}
	var orphans []string
	for _, n := range w.Nodes {
		if _, ok := reached[n.ID]; !ok {
			orphans = append(orphans, n.ID)
		}
	}
	return orphans
}

// validIdent reports whether s works as a store namespace and template
// path head.
func validIdent(s string) bool {
	p, err := template.ParsePath(s)
	if err != nil {
		return false
	}
	return len(p.Segments) == 1 && p.Segments[0].IsKey
}

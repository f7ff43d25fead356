// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cascadeflow/cascade/ir"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/types"
)

// Compiled is the executable form of a workflow: every node bound to its
// registry entry, edges indexed by action, and the run-level settings the
// IR may override folded in. A Compiled is immutable; Execute assembles
// fresh per-run state around it, so one Compiled serves repeated and
// concurrent runs.
type Compiled struct {
	Workflow *ir.Workflow

	// Warnings carries permissive-mode static findings into every run of
	// this workflow.
	Warnings []types.RunWarning

	nodes map[string]compiledNode
	edges map[string]map[string]string
	mode  template.Mode
	batch int
}

type compiledNode struct {
	spec  ir.Node
	entry registry.Entry
}

// Mode returns the effective template resolution mode, the IR override
// applied.
func (c *Compiled) Mode() template.Mode { return c.mode }

// BatchLimit returns the effective batch limit. Zero means unlimited.
func (c *Compiled) BatchLimit() int { return c.batch }

// Next returns the target of the edge leaving from with the given action.
func (c *Compiled) Next(from, action string) (string, bool) {
	to, ok := c.edges[from][action]
	return to, ok
}

// Compile validates the workflow, resolves every node type through the
// registry (dynamic resolvers included, which is why it takes a context),
// and runs the static template check. In strict mode a reference into a
// field no shape admits fails compilation; in permissive mode it becomes
// a warning attached to the Compiled.
func (e *Engine) Compile(ctx context.Context, wf *ir.Workflow) (*Compiled, error) {
	if wf == nil {
		return nil, types.Errorf(types.CategoryCompile, "nil workflow")
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	mode := e.opts.Mode
	if wf.TemplateResolutionMode != "" {
		mode, _ = template.ParseMode(wf.TemplateResolutionMode)
	}
	batch := e.opts.BatchLimit
	if wf.BatchLimit != nil {
		batch = *wf.BatchLimit
	}

	for name, in := range wf.Inputs {
		if in.Type == "" {
			continue
		}
		if _, err := types.ParseKind(in.Type); err != nil {
			return nil, types.Errorf(types.CategoryCompile, "input %q: %v", name, err)
		}
	}

	c := &Compiled{
		Workflow: wf,
		nodes:    make(map[string]compiledNode, len(wf.Nodes)),
		edges:    make(map[string]map[string]string, len(wf.Nodes)),
		mode:     mode,
		batch:    batch,
	}
	for _, n := range wf.Nodes {
		entry, err := e.reg.Resolve(ctx, n.Type)
		if err != nil {
			return nil, types.Errorf(types.CategoryCompile,
				"node %q: %v", n.ID, err).WithNode(n.ID).WithCause(err)
		}
		c.nodes[n.ID] = compiledNode{spec: n, entry: entry}
	}
	for _, edge := range wf.Edges {
		action := edge.Action
		if action == "" {
			action = ir.DefaultAction
		}
		if c.edges[edge.From] == nil {
			c.edges[edge.From] = make(map[string]string)
		}
		c.edges[edge.From][action] = edge.To
	}

	if err := e.staticCheck(c); err != nil {
		return nil, err
	}
	return c, nil
}

// staticCheck verifies that every template reference in node parameters
// and output sources points at a root the run can produce, and that
// references into closed shapes name declared fields. The check only runs
// under namespacing; without it nodes write arbitrary root keys and
// nothing is statically known.
func (e *Engine) staticCheck(c *Compiled) error {
	if !e.opts.Namespacing {
		return nil
	}
	wf := c.Workflow

	for _, n := range wf.Nodes {
		for _, ref := range template.ExtractRefs(n.Params) {
			reason, ok := c.checkRef(ref)
			if ok {
				continue
			}
			msg := fmt.Sprintf("param %s: %s", ref.ParamPath, reason)
			if c.mode == template.ModeStrict {
				return types.Errorf(types.CategoryCompile,
					"node %q: %s", n.ID, msg).WithNode(n.ID)
			}
			c.Warnings = append(c.Warnings,
				types.Warningf(types.WarnStaticMismatch, n.ID, "%s", msg))
		}
	}

	names := make([]string, 0, len(wf.Outputs))
	for name := range wf.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src := map[string]types.Value{name: types.NewString(wf.Outputs[name].Source)}
		for _, ref := range template.ExtractRefs(src) {
			reason, ok := c.checkRef(ref)
			if ok {
				continue
			}
			msg := fmt.Sprintf("output %q: %s", name, reason)
			if c.mode == template.ModeStrict {
				return types.Errorf(types.CategoryCompile, "%s", msg)
			}
			c.Warnings = append(c.Warnings,
				types.Warningf(types.WarnStaticMismatch, "", "%s", msg))
		}
	}
	return nil
}

// checkRef judges one extracted reference. The bool reports whether the
// reference passes; the string is the reason when it does not.
func (c *Compiled) checkRef(ref template.Ref) (string, bool) {
	if ref.ParseErr != nil {
		return fmt.Sprintf("invalid template expression %s: %v", ref.Expr, ref.ParseErr), false
	}
	root := ref.Path.Root()
	if _, ok := c.Workflow.Inputs[root]; ok {
		return "", true
	}
	target, ok := c.nodes[root]
	if !ok {
		return fmt.Sprintf("%s references %q, which is neither a node nor an input (known roots: %s)",
			ref.Expr, root, strings.Join(c.knownRoots(), ", ")), false
	}
	if target.entry.Open {
		return "", true
	}
	tail := template.Path{Segments: ref.Path.Segments[1:]}
	if !target.entry.Outputs.Has(tail) {
		keys := target.entry.Outputs.Keys()
		return fmt.Sprintf("%s does not match any output of node %q (type %s declares: %s)",
			ref.Expr, root, target.spec.Type, strings.Join(keys, ", ")), false
	}
	return "", true
}

// knownRoots lists every root a template may legally start at, sorted.
func (c *Compiled) knownRoots() []string {
	roots := make([]string, 0, len(c.nodes)+len(c.Workflow.Inputs))
	for id := range c.nodes {
		roots = append(roots, id)
	}
	for name := range c.Workflow.Inputs {
		roots = append(roots, name)
	}
	sort.Strings(roots)
	return roots
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package template

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/store"
	"github.com/cascadeflow/cascade/types"
)

// Mode selects how resolution failures are handled by the caller. The
// resolver itself always behaves the same way: it resolves what it can,
// substitutes the raw expression text for what it cannot, and reports every
// failure. Strict callers turn the first failure into an error before the
// node runs; permissive callers record warnings and let the literal text
// through.
type Mode string

const (
	ModeStrict     Mode = "strict"
	ModePermissive Mode = "permissive"
)

// ParseMode validates a mode string, defaulting empty to strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeStrict, nil
	case ModeStrict, ModePermissive:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown template resolution mode %q", s)
	}
}

// Failure describes one reference that could not be resolved, with enough
// context for a repair loop to propose a fix.
type Failure struct {
	// Expr is the raw expression text, "${fetch.content}".
	Expr string
	// Path is the attempted path when the expression parsed.
	Path Path
	// Reason is a human-readable cause.
	Reason string
	// TargetNode is the root key the path starts at.
	TargetNode string
	// Available lists the fields actually present at the deepest point the
	// lookup reached, as repair hints.
	Available []string
	// ParamPath locates the failing string inside the parameter tree.
	ParamPath string
}

// Error implements the error interface.
func (f Failure) Error() string {
	if len(f.Available) > 0 {
		return fmt.Sprintf("cannot resolve %s: %s (available: %s)",
			f.Expr, f.Reason, strings.Join(f.Available, ", "))
	}
	return fmt.Sprintf("cannot resolve %s: %s", f.Expr, f.Reason)
}

// RunError converts the failure into a structured template error attributed
// to the node whose parameter referenced the path.
func (f Failure) RunError(nodeID string) *types.RunError {
	err := types.NewRunError(types.CategoryTemplate, f.Error()).WithNode(nodeID).
		WithDetail("attempted_path", types.NewString(f.Path.String())).
		WithDetail("expression", types.NewString(f.Expr))
	if f.TargetNode != "" {
		err = err.WithDetail("target_node", types.NewString(f.TargetNode))
	}
	if len(f.Available) > 0 {
		hints := make([]types.Value, len(f.Available))
		for i, a := range f.Available {
			hints[i] = types.NewString(a)
		}
		err = err.WithDetail("available_fields", types.NewList(hints...))
	}
	return err
}

// Lookup walks a path against the full store. The first segment names a
// root entry: an executed node's namespace or an injected input. Lookup is
// the single shared read path for both template forms and for workflow
// output surfacing, so all of them fail identically.
func Lookup(sh *store.Shared, p Path) (types.Value, *Failure) {
	if len(p.Segments) == 0 {
		return types.Null, &Failure{Reason: "empty path"}
	}
	root := p.Root()
	cur, ok := sh.Get(root)
	if !ok {
		return types.Null, &Failure{
			Path:       p,
			Reason:     fmt.Sprintf("no node output or input named %q", root),
			TargetNode: root,
			Available:  sh.Keys(),
		}
	}

	walked := root
	for _, seg := range p.Segments[1:] {
		if seg.IsKey {
			next, ok := cur.Field(seg.Key)
			if !ok {
				return types.Null, &Failure{
					Path:       p,
					Reason:     fmt.Sprintf("%s has no field %q", walked, seg.Key),
					TargetNode: root,
					Available:  fieldNames(cur),
				}
			}
			cur = next
			walked += "." + seg.Key
			continue
		}
		next, ok := cur.Index(seg.Index)
		if !ok {
			return types.Null, &Failure{
				Path:       p,
				Reason:     fmt.Sprintf("%s has no index %d (length %d)", walked, seg.Index, cur.Len()),
				TargetNode: root,
			}
		}
		cur = next
		walked += fmt.Sprintf("[%d]", seg.Index)
	}
	return cur, nil
}

func fieldNames(v types.Value) []string {
	fields, ok := v.AsMap()
	if !ok {
		return []string{fmt.Sprintf("(not a map: %s)", v.Kind())}
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolver resolves template expressions against a shared store.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a resolver. A nil logger disables logging.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger.With(zap.String("component", "template"))}
}

// ResolveString resolves every expression in s. Simple form returns the
// referenced value with its type preserved; complex form returns a string.
// Failed references substitute their raw expression text and are reported
// in the returned slice, identically for both forms.
func (r *Resolver) ResolveString(s string, sh *store.Shared) (types.Value, []Failure) {
	if !strings.Contains(s, "${") {
		return types.NewString(s), nil
	}

	chunks := scan(s)
	form, _ := Classify(s)

	if form == FormSimple {
		for _, c := range chunks {
			if c.expr == nil {
				continue
			}
			v, fail := r.resolveExpr(c.expr, sh)
			if fail != nil {
				return types.NewString(c.expr.Raw), []Failure{*fail}
			}
			return v, nil
		}
	}

	// Complex form, or a string whose only template syntax was escaped:
	// rebuild the text chunk by chunk.
	var b strings.Builder
	var failures []Failure
	for _, c := range chunks {
		if c.expr == nil {
			b.WriteString(c.lit)
			continue
		}
		v, fail := r.resolveExpr(c.expr, sh)
		if fail != nil {
			failures = append(failures, *fail)
			b.WriteString(c.expr.Raw)
			continue
		}
		b.WriteString(v.Text())
	}
	return types.NewString(b.String()), failures
}

func (r *Resolver) resolveExpr(e *Expr, sh *store.Shared) (types.Value, *Failure) {
	if e.ParseErr != nil {
		return types.Null, &Failure{
			Expr:   e.Raw,
			Reason: e.ParseErr.Error(),
		}
	}
	v, fail := Lookup(sh, e.Path)
	if fail != nil {
		fail.Expr = e.Raw
		return types.Null, fail
	}
	return v, nil
}

// ResolveValue resolves every string in a value tree, returning a new tree.
// Non-string leaves pass through untouched.
func (r *Resolver) ResolveValue(v types.Value, sh *store.Shared) (types.Value, []Failure) {
	return r.resolveValueAt("", v, sh)
}

func (r *Resolver) resolveValueAt(path string, v types.Value, sh *store.Shared) (types.Value, []Failure) {
	switch v.Kind() {
	case types.KindString:
		s, _ := v.AsString()
		resolved, failures := r.ResolveString(s, sh)
		for i := range failures {
			failures[i].ParamPath = path
		}
		return resolved, failures
	case types.KindList:
		items, _ := v.AsList()
		out := make([]types.Value, len(items))
		var failures []Failure
		for i, item := range items {
			rv, fs := r.resolveValueAt(fmt.Sprintf("%s[%d]", path, i), item, sh)
			out[i] = rv
			failures = append(failures, fs...)
		}
		return types.NewList(out...), failures
	case types.KindMap:
		fields, _ := v.AsMap()
		out := make(map[string]types.Value, len(fields))
		var failures []Failure
		for k, item := range fields {
			child := k
			if path != "" {
				child = path + "." + k
			}
			rv, fs := r.resolveValueAt(child, item, sh)
			out[k] = rv
			failures = append(failures, fs...)
		}
		return types.NewMap(out), failures
	default:
		return v, nil
	}
}

// ResolveParams resolves a node's raw parameter map against the store.
func (r *Resolver) ResolveParams(params map[string]types.Value, sh *store.Shared) (map[string]types.Value, []Failure) {
	out := make(map[string]types.Value, len(params))
	var failures []Failure
	for k, v := range params {
		rv, fs := r.resolveValueAt(k, v, sh)
		out[k] = rv
		failures = append(failures, fs...)
	}
	if len(failures) > 0 {
		r.logger.Debug("parameter resolution incomplete",
			zap.Int("failures", len(failures)),
			zap.String("first", failures[0].Error()))
	}
	return out, failures
}

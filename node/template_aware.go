// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package node

import (
	"context"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/store"
	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/types"
)

// TemplateAware resolves ${...} references in the raw parameters right
// before the core runs, so templates always see the current store state.
// Resolution reads through the view's bridge: a node's templates may read
// any namespace even though its writes stay scoped.
type TemplateAware struct {
	id       string
	core     Core
	raw      map[string]types.Value
	resolver *template.Resolver
	mode     template.Mode
	logger   *zap.Logger
}

// NewTemplateAware wraps core with just-in-time parameter resolution.
func NewTemplateAware(id string, core Core, opts Options) *TemplateAware {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = template.NewResolver(opts.Logger)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := opts.Mode
	if mode == "" {
		mode = template.ModeStrict
	}
	return &TemplateAware{
		id:       id,
		core:     core,
		raw:      opts.RawParams,
		resolver: resolver,
		mode:     mode,
		logger:   logger.With(zap.String("node_id", id)),
	}
}

// ID implements Node.
func (t *TemplateAware) ID() string { return t.id }

// Run resolves parameters and dispatches the core. In strict mode the
// first resolution failure aborts the dispatch before the core runs; in
// permissive mode failed expressions stay as literal text and each failure
// becomes a warning on the result.
func (t *TemplateAware) Run(ctx context.Context, view *store.View) (Result, error) {
	resolved, failures := t.resolver.ResolveParams(t.raw, view.Bridge())

	var warnings []types.RunWarning
	if len(failures) > 0 {
		if t.mode == template.ModeStrict {
			return Result{}, failures[0].RunError(t.id)
		}
		warnings = make([]types.RunWarning, 0, len(failures))
		for _, f := range failures {
			warnings = append(warnings, types.Warningf(types.WarnUnresolvedTemplate, t.id,
				"parameter %s: %s left unresolved: %s", f.ParamPath, f.Expr, f.Reason))
		}
		t.logger.Debug("parameters partially resolved",
			zap.Int("failures", len(failures)))
	}

	res, err := t.core.Exec(ctx, &Call{Params: resolved, Store: view})
	if err != nil {
		return Result{}, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

// ResolveOnce resolves the raw parameters against the store without
// dispatching. Instrumented uses it to compute the checkpoint parameter
// hash; failed expressions keep their literal text, which makes the hash
// deterministic for a given store state.
func ResolveOnce(resolver *template.Resolver, raw map[string]types.Value, sh *store.Shared) map[string]types.Value {
	resolved, _ := resolver.ResolveParams(raw, sh)
	return resolved
}

var _ Node = (*TemplateAware)(nil)

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package node

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/checkpoint"
	"github.com/cascadeflow/cascade/classify"
	"github.com/cascadeflow/cascade/internal/ctxkeys"
	"github.com/cascadeflow/cascade/store"
	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/types"
	"github.com/cascadeflow/cascade/usage"
)

// llmCallsKey is the store key cores use to hand LLM call records up to
// the wrapper. Instrumented drains it on every dispatch so the records
// never leak into node output.
const llmCallsKey = "llm_calls"

// Instrumented is the outermost wrapper. It owns everything that needs
// the full picture of a dispatch: checkpoint skip and restore, timing,
// usage attribution, output capture, soft-error classification, the
// unresolved-template scan over outputs, store diffing, and the observer
// callback. Failures leaving Run are always *types.RunError.
type Instrumented struct {
	id             string
	typ            string
	inner          Node
	raw            map[string]types.Value
	resolver       *template.Resolver
	mode           template.Mode
	namespacing    bool
	checkpoints    checkpoint.Store
	resumeKey      string
	skipOutputScan bool
	collector      *usage.Collector
	observer       Observer
	logger         *zap.Logger
	tracer         trace.Tracer

	attempt int
}

// NewInstrumented wraps inner with run bookkeeping. One Instrumented is
// built per node per run; it counts its own dispatch attempts.
func NewInstrumented(id string, inner Node, opts Options) *Instrumented {
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
	return &Instrumented{
		id:             id,
		typ:            opts.Type,
		inner:          inner,
		raw:            opts.RawParams,
		resolver:       resolver,
		mode:           mode,
		namespacing:    opts.Namespacing,
		checkpoints:    opts.Checkpoints,
		resumeKey:      opts.ResumeKey,
		skipOutputScan: opts.SkipOutputScan,
		collector:      opts.Collector,
		observer:       opts.Observer,
		logger:         logger.With(zap.String("node_id", id), zap.String("node_type", opts.Type)),
		tracer:         otel.Tracer("github.com/cascadeflow/cascade/node"),
	}
}

// ID implements Node.
func (n *Instrumented) ID() string { return n.id }

// Run implements Node.
func (n *Instrumented) Run(ctx context.Context, view *store.View) (Result, error) {
	n.attempt++
	rec := DispatchRecord{
		NodeID:    n.id,
		Type:      n.typ,
		Attempt:   n.attempt,
		StartedAt: time.Now(),
	}

	ctx, span := n.tracer.Start(ctx, "node.dispatch",
		trace.WithAttributes(
			attribute.String("node.id", n.id),
			attribute.String("node.type", n.typ),
			attribute.Int("node.attempt", n.attempt),
		))
	defer span.End()

	sh := view.Bridge()
	before := sh.Snapshot()
	mark := 0
	if n.collector != nil {
		mark = n.collector.Len()
	}

	// The hash covers the parameters as the core would see them right
	// now. Resolution is read-only, so hashing does not disturb the
	// dispatch the chain performs below.
	resolved := ResolveOnce(n.resolver, n.raw, sh)
	rec.ParamHash = checkpoint.HashParams(resolved)

	if saved, ok := n.lookupCheckpoint(ctx, rec.ParamHash); ok {
		n.restore(sh, saved.Output)
		rec.Skipped = true
		rec.Action = saved.Action
		rec.Output = saved.Output
		rec.StoreDiff = store.Diff(before, sh.Snapshot())
		rec.Duration = time.Since(rec.StartedAt)
		span.SetAttributes(attribute.Bool("node.skipped", true))
		n.logger.Info("checkpoint hit, node skipped",
			zap.String("param_hash", rec.ParamHash))
		n.emit(rec)
		return Result{Action: saved.Action}, nil
	}

	ctx = ctxkeys.WithNodeID(ctx, n.id)
	res, err := n.inner.Run(ctx, view)

	n.drainCalls(sh)
	after := sh.Snapshot()
	rec.StoreDiff = store.Diff(before, after)
	rec.Output = n.captureOutput(sh, rec.StoreDiff)
	if n.collector != nil {
		rec.Usage = n.collector.AttributeSince(mark, n.id)
	}
	rec.Duration = time.Since(rec.StartedAt)
	rec.Warnings = res.Warnings

	if err == nil {
		// An output shaped like an error fails the node the same way a
		// raised error would.
		if soft := classify.Output(n.id, rec.Output); soft != nil {
			err = soft
		}
	}
	if err == nil {
		var scanErr *types.RunError
		scanErr, rec.Unresolved, rec.Warnings = n.scanOutput(rec.Output, rec.Warnings)
		if scanErr != nil {
			err = scanErr
		}
	}

	if err != nil {
		runErr := classify.Error(n.id, err).WithAttempt(n.attempt)
		rec.Err = runErr
		span.RecordError(runErr)
		n.logger.Warn("node failed",
			zap.String("category", string(runErr.Category)),
			zap.Int("attempt", n.attempt),
			zap.Bool("repairable", runErr.Repairable),
			zap.Error(runErr))
		n.emit(rec)
		return Result{Warnings: rec.Warnings}, runErr
	}

	rec.Action = res.Action
	span.SetAttributes(attribute.String("node.action", res.Action))
	n.saveCheckpoint(ctx, rec)
	n.logger.Debug("node completed",
		zap.String("action", res.Action),
		zap.Duration("duration", rec.Duration),
		zap.Int("llm_calls", len(rec.Usage)))
	n.emit(rec)
	res.Warnings = rec.Warnings
	return res, nil
}

// lookupCheckpoint reports whether a saved record with a matching
// parameter hash exists. Lookup errors degrade to a miss.
func (n *Instrumented) lookupCheckpoint(ctx context.Context, hash string) (checkpoint.Record, bool) {
	if n.checkpoints == nil {
		return checkpoint.Record{}, false
	}
	saved, ok, err := n.checkpoints.Load(ctx, n.resumeKey, n.id)
	if err != nil {
		n.logger.Warn("checkpoint lookup failed", zap.Error(err))
		return checkpoint.Record{}, false
	}
	if !ok || saved.ParamHash != hash {
		return checkpoint.Record{}, false
	}
	return saved, true
}

// restore writes a checkpointed output back into the store so downstream
// templates resolve exactly as they did on the original run.
func (n *Instrumented) restore(sh *store.Shared, output types.Value) {
	if output.IsNull() {
		return
	}
	if n.namespacing {
		sh.Set(n.id, output.Clone())
		return
	}
	m, ok := output.AsMap()
	if !ok {
		return
	}
	for k, v := range m {
		if v.IsNull() {
			sh.Delete(k)
			continue
		}
		sh.Set(k, v.Clone())
	}
}

// saveCheckpoint persists a successful dispatch. Save failures are logged
// and swallowed; checkpointing must never fail a run.
func (n *Instrumented) saveCheckpoint(ctx context.Context, rec DispatchRecord) {
	if n.checkpoints == nil {
		return
	}
	saved := checkpoint.Record{
		NodeID:    n.id,
		ParamHash: rec.ParamHash,
		Action:    rec.Action,
		Output:    rec.Output.Clone(),
		SavedAt:   time.Now(),
	}
	if err := n.checkpoints.Save(ctx, n.resumeKey, saved); err != nil {
		n.logger.Warn("checkpoint save failed", zap.Error(err))
	}
}

// captureOutput returns what this dispatch produced: the node's namespace
// content when namespacing is on, otherwise the root keys it changed.
func (n *Instrumented) captureOutput(sh *store.Shared, diff map[string]types.Value) types.Value {
	if n.namespacing {
		if v, ok := sh.Get(n.id); ok {
			return v
		}
		return types.Null
	}
	if len(diff) == 0 {
		return types.Null
	}
	return types.NewMap(diff)
}

// scanOutput looks for template expressions that survived into the output.
// Strict mode turns the first one into an error; permissive mode turns
// each into a warning.
func (n *Instrumented) scanOutput(output types.Value, warnings []types.RunWarning) (*types.RunError, []template.Hit, []types.RunWarning) {
	if n.skipOutputScan {
		return nil, nil, warnings
	}
	hits := template.FindUnresolved(output)
	if len(hits) == 0 {
		return nil, nil, warnings
	}
	if n.mode == template.ModeStrict {
		h := hits[0]
		err := types.Errorf(types.CategoryTemplate,
			"unresolved template %s in output at %q", h.Expr, h.ValuePath).
			WithNode(n.id).
			WithDetail("expression", types.NewString(h.Expr)).
			WithDetail("value_path", types.NewString(h.ValuePath))
		return err, hits, warnings
	}
	for _, h := range hits {
		warnings = append(warnings, types.Warningf(types.WarnUnresolvedOutput, n.id,
			"output at %q contains unresolved template %s", h.ValuePath, h.Expr))
	}
	return nil, hits, warnings
}

// drainCalls moves any llm_calls list the core wrote into the usage
// collector and removes it from the store.
func (n *Instrumented) drainCalls(sh *store.Shared) {
	if n.collector == nil {
		return
	}
	if n.namespacing {
		ns, ok := sh.Get(n.id)
		if !ok {
			return
		}
		m, isMap := ns.AsMap()
		if !isMap {
			return
		}
		calls, has := m[llmCallsKey]
		if !has {
			return
		}
		for _, c := range decodeCalls(calls) {
			n.collector.Record(c)
		}
		rebuilt := make(map[string]types.Value, len(m))
		for k, v := range m {
			if k != llmCallsKey {
				rebuilt[k] = v
			}
		}
		sh.Set(n.id, types.NewMap(rebuilt))
		return
	}
	calls, ok := sh.Get(llmCallsKey)
	if !ok {
		return
	}
	for _, c := range decodeCalls(calls) {
		n.collector.Record(c)
	}
	sh.Delete(llmCallsKey)
}

// decodeCalls converts a stored llm_calls list into call records. Items
// that do not decode are dropped rather than failing the dispatch.
func decodeCalls(v types.Value) []types.LLMCallRecord {
	items, ok := v.AsList()
	if !ok {
		return nil
	}
	out := make([]types.LLMCallRecord, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item.Interface())
		if err != nil {
			continue
		}
		var rec types.LLMCallRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (n *Instrumented) emit(rec DispatchRecord) {
	if n.observer != nil {
		n.observer.NodeDispatched(rec)
	}
}

var _ Node = (*Instrumented)(nil)

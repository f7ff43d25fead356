// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/checkpoint"
	"github.com/cascadeflow/cascade/internal/ctxkeys"
	"github.com/cascadeflow/cascade/internal/metrics"
	"github.com/cascadeflow/cascade/ir"
	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/store"
	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/trace"
	"github.com/cascadeflow/cascade/types"
	"github.com/cascadeflow/cascade/usage"
)

// DefaultMaxHops bounds the dispatch loop when Options leaves MaxHops
// unset. Hops count dispatches, so retries do not consume the budget.
const DefaultMaxHops = 256

// historySaveTimeout bounds the run-history write after a run finishes.
// The write uses its own context so a cancelled run still gets recorded.
const historySaveTimeout = 5 * time.Second

// Options configure an Engine. The zero value runs strict, namespaced,
// unlimited-batch workflows with no checkpointing, tracing to nowhere,
// and no metrics.
type Options struct {
	// Mode is the default template resolution mode. The IR's
	// template_resolution_mode overrides it per workflow. Empty means
	// strict.
	Mode template.Mode

	// Namespacing scopes each node's writes to its own namespace. The
	// static template check only runs when this is on.
	Namespacing bool

	// BatchLimit is the default cap on batch node expansion. Zero means
	// unlimited. The IR's batch_limit overrides it per workflow.
	BatchLimit int

	// MaxHops bounds dispatches per run, the guard against action
	// cycles. Zero means DefaultMaxHops.
	MaxHops int

	// NodeTimeout caps each dispatch attempt. Zero means no deadline.
	// Retries start a fresh deadline.
	NodeTimeout time.Duration

	// SkipOutputScan lists node IDs or type names whose outputs skip the
	// unresolved-template scan, for nodes that legitimately emit literal
	// ${...} text.
	SkipOutputScan []string

	// Checkpoints enables resume when non-nil. Records are keyed by
	// workflow name, so unnamed workflows run without checkpointing.
	Checkpoints checkpoint.Store

	// TraceDir receives one artifact file per run. Empty disables trace
	// files; the in-memory artifact is still built for history.
	TraceDir    string
	TraceLimits trace.Limits

	// History persists finished runs when non-nil.
	History *trace.History

	// Metrics receives run, dispatch, and LLM counters when non-nil.
	Metrics *metrics.Collector

	// Env is the service environment handed to node factories. The
	// engine owns Env.Subflow and Env.BatchLimit and fills Env.Logger
	// when nil; the caller wires the rest.
	Env registry.Env

	// SubflowLoader resolves a subflow name to its workflow. Nil falls
	// back to loading IR files relative to Env.BaseDir.
	SubflowLoader func(ctx context.Context, name string) (*ir.Workflow, error)

	Logger *zap.Logger
}

// Engine compiles and executes workflows. One Engine is safe for
// concurrent use; all per-run state lives in Execute's frame.
type Engine struct {
	reg      *registry.Registry
	opts     Options
	resolver *template.Resolver
	logger   *zap.Logger
}

// New builds an Engine over a registry.
func New(reg *registry.Registry, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "engine"))
	if opts.Mode == "" {
		opts.Mode = template.ModeStrict
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	e := &Engine{
		reg:      reg,
		opts:     opts,
		resolver: template.NewResolver(logger),
		logger:   logger,
	}
	if e.opts.SubflowLoader == nil {
		e.opts.SubflowLoader = FileSubflowLoader(opts.Env.BaseDir)
	}
	return e
}

// Result is what a finished run reports.
type Result struct {
	RunID    string          `json:"run_id"`
	Workflow string          `json:"workflow,omitempty"`
	Success  bool            `json:"success"`
	Status   types.RunStatus `json:"status"`

	// Outputs holds the declared workflow outputs resolved against the
	// final store. Failed runs surface none.
	Outputs map[string]types.Value `json:"outputs,omitempty"`

	// SharedAfter is the final store content, trace limits applied.
	SharedAfter map[string]types.Value `json:"shared_after,omitempty"`

	Errors   []*types.RunError    `json:"errors,omitempty"`
	Warnings []types.RunWarning   `json:"warnings,omitempty"`
	Summary  types.MetricsSummary `json:"summary"`

	// TracePath is the artifact file, when trace files are enabled.
	TracePath string `json:"trace_path,omitempty"`

	// Repair is the handoff for the external repair loop, set when the
	// run failed on a repairable node error.
	Repair *types.RepairContext `json:"repair,omitempty"`

	State ExecutionState `json:"state"`
}

// ExecutionState records how far the run got, for resume and debugging.
type ExecutionState struct {
	// Completed lists node IDs in completion order.
	Completed []string `json:"completed,omitempty"`

	// NodeActions maps each completed node to the action it returned.
	NodeActions map[string]string `json:"node_actions,omitempty"`

	// FailedNode is where a failed run stopped.
	FailedNode string `json:"failed_node,omitempty"`
}

// Run compiles and executes in one call.
func (e *Engine) Run(ctx context.Context, wf *ir.Workflow, inputs map[string]types.Value) (*Result, error) {
	c, err := e.Compile(ctx, wf)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, c, inputs)
}

// runState accumulates dispatch-level counters and warnings. The dispatch
// loop is sequential, so plain fields suffice.
type runState struct {
	executed int
	skipped  int
	retries  int
	warnings []types.RunWarning
}

// Execute runs a compiled workflow. Node failures do not produce an error
// return; they produce a Result with status FAILED. The error return is
// reserved for runs that could not start at all: undeclared or missing
// inputs, or a node factory refusing to build.
func (e *Engine) Execute(ctx context.Context, c *Compiled, inputs map[string]types.Value) (*Result, error) {
	runID := uuid.NewString()
	wfName := c.Workflow.Name

	sh, seedErr := seedStore(c.Workflow, inputs)
	if seedErr != nil {
		return nil, seedErr
	}

	started := time.Now()
	col := usage.NewCollector()
	usage.Install(runID, col)
	defer usage.Uninstall(runID)
	ctx = usage.WithCollector(ctx, col)
	ctx = ctxkeys.WithRunID(ctx, runID)
	if wfName != "" {
		ctx = ctxkeys.WithWorkflow(ctx, wfName)
	}

	recorder := trace.NewRecorder(runID, wfName, e.opts.TraceLimits)
	rs := &runState{}
	resumeKey := e.resumeKey(wfName)
	chains, err := e.assemble(c, col, e.observer(recorder, rs), resumeKey)
	if err != nil {
		return nil, err
	}

	e.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("workflow", wfName),
		zap.Int("nodes", len(c.Workflow.Nodes)),
		zap.String("mode", string(c.mode)))

	warnings := append([]types.RunWarning(nil), c.Warnings...)
	var errs []*types.RunError
	var repair *types.RepairContext
	state := ExecutionState{NodeActions: make(map[string]string)}
	view := store.NewView(sh)

	entry, _ := c.Workflow.Entry()
	current := entry.ID
	fatal := false
	for hops := 0; current != ""; hops++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, types.Errorf(types.CategoryCancelled,
				"run cancelled before node %q: %v", current, ctxErr).WithNode(current))
			state.FailedNode = current
			fatal = true
			break
		}
		if hops >= e.opts.MaxHops {
			errs = append(errs, types.Errorf(types.CategoryExecution,
				"dispatch limit %d reached at node %q; the action graph likely cycles",
				e.opts.MaxHops, current).WithNode(current).WithRepairable(false))
			state.FailedNode = current
			fatal = true
			break
		}

		cn := c.nodes[current]
		res, runErr := e.dispatch(ctx, chains[current], cn, view)
		if runErr != nil {
			errs = append(errs, runErr)
			state.FailedNode = current
			fatal = true
			repair = repairContext(runID, cn, runErr)
			break
		}

		action := res.Action
		if action == "" {
			action = ir.DefaultAction
		}
		state.Completed = append(state.Completed, current)
		state.NodeActions[current] = action

		next, ok := c.Next(current, action)
		if !ok {
			e.logger.Debug("terminal node reached",
				zap.String("run_id", runID),
				zap.String("node", current),
				zap.String("action", action))
			current = ""
			continue
		}
		current = next
	}

	warnings = append(warnings, rs.warnings...)
	outputs := map[string]types.Value{}
	if !fatal {
		outputs, warnings = e.surfaceOutputs(c.Workflow, sh, warnings)
	}

	status := types.DeriveStatus(len(warnings), fatal)
	duration := time.Since(started)
	summary := types.MetricsSummary{
		NodesExecuted: rs.executed,
		NodesSkipped:  rs.skipped,
		Retries:       rs.retries,
		Warnings:      len(warnings),
		Errors:        len(errs),
		Usage:         col.Totals(),
		DurationMS:    duration.Milliseconds(),
	}

	artifact := recorder.Finish(status, warnings, errs, summary)
	tracePath := e.writeTrace(artifact)
	e.saveHistory(artifact)
	e.finalizeCheckpoints(ctx, status, resumeKey)
	if m := e.opts.Metrics; m != nil {
		m.RecordRun(wfName, string(status), duration)
		for _, w := range warnings {
			m.RecordWarning(string(w.Code))
		}
	}

	e.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("workflow", wfName),
		zap.String("status", string(status)),
		zap.Int("nodes_executed", rs.executed),
		zap.Int("warnings", len(warnings)),
		zap.Duration("duration", duration))

	return &Result{
		RunID:       runID,
		Workflow:    wfName,
		Success:     status != types.RunFailed,
		Status:      status,
		Outputs:     outputs,
		SharedAfter: e.opts.TraceLimits.Diff(sh.Snapshot()),
		Errors:      errs,
		Warnings:    warnings,
		Summary:     summary,
		TracePath:   tracePath,
		Repair:      repair,
		State:       state,
	}, nil
}

// dispatch runs one node through its wrapper chain, honoring the node's
// retry policy. Non-repairable failures return immediately regardless of
// remaining attempts; repairable ones retry after the configured delay.
func (e *Engine) dispatch(ctx context.Context, chain node.Node, cn compiledNode, view *store.View) (node.Result, *types.RunError) {
	maxAttempts, delay := retryPolicy(cn.spec.Retry)
	for attempt := 1; ; attempt++ {
		res, err := e.runAttempt(ctx, chain, view)
		if err == nil {
			return res, nil
		}
		runErr, ok := types.AsRunError(err)
		if !ok {
			runErr = types.Errorf(types.CategoryExecution, "%v", err).
				WithNode(cn.spec.ID).WithCause(err)
		}
		if !runErr.Repairable || attempt >= maxAttempts {
			return res, runErr
		}
		e.logger.Debug("node retry scheduled",
			zap.String("node", cn.spec.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("category", string(runErr.Category)))
		if delay > 0 {
			select {
			case <-ctx.Done():
				return res, types.Errorf(types.CategoryCancelled,
					"retry wait interrupted: %v", ctx.Err()).
					WithNode(cn.spec.ID).WithAttempt(attempt)
			case <-time.After(delay):
			}
		}
	}
}

func (e *Engine) runAttempt(ctx context.Context, chain node.Node, view *store.View) (node.Result, error) {
	if e.opts.NodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.NodeTimeout)
		defer cancel()
	}
	return chain.Run(ctx, view)
}

func retryPolicy(r *ir.Retry) (int, time.Duration) {
	if r == nil || r.MaxAttempts <= 1 {
		return 1, 0
	}
	return r.MaxAttempts, time.Duration(r.DelayMS) * time.Millisecond
}

// assemble builds the per-run wrapper chain for every node. Factory
// errors abort the run before any node executes.
func (e *Engine) assemble(c *Compiled, col *usage.Collector, obs node.Observer, resumeKey string) (map[string]node.Node, error) {
	env := e.opts.Env
	if env.Logger == nil {
		env.Logger = e.logger
	}
	env.Subflow = &subflowRunner{engine: e}
	env.BatchLimit = c.batch

	var cp checkpoint.Store
	if resumeKey != "" {
		cp = e.opts.Checkpoints
	}

	chains := make(map[string]node.Node, len(c.nodes))
	for id, cn := range c.nodes {
		core, err := cn.entry.Factory(registry.Spec{ID: id, Type: cn.spec.Type, Params: cn.spec.Params}, env)
		if err != nil {
			return nil, types.Errorf(types.CategoryCompile,
				"node %q (type %s): %v", id, cn.spec.Type, err).WithNode(id).WithCause(err)
		}
		chains[id] = node.Wrap(id, core, node.Options{
			Type:           cn.spec.Type,
			RawParams:      cn.spec.Params,
			Resolver:       e.resolver,
			Mode:           c.mode,
			Namespacing:    e.opts.Namespacing,
			Checkpoints:    cp,
			ResumeKey:      resumeKey,
			SkipOutputScan: e.skipScan(id, cn.spec.Type),
			Collector:      col,
			Observer:       obs,
			Logger:         e.logger,
		})
	}
	return chains, nil
}

// observer fans each dispatch record out to the trace recorder, the run
// counters, and the optional metrics collector.
func (e *Engine) observer(rec *trace.Recorder, rs *runState) node.Observer {
	return node.ObserverFunc(func(d node.DispatchRecord) {
		rec.NodeDispatched(d)
		if d.Skipped {
			rs.skipped++
		} else {
			rs.executed++
			if d.Attempt > 1 {
				rs.retries++
			}
		}
		rs.warnings = append(rs.warnings, d.Warnings...)

		m := e.opts.Metrics
		if m == nil {
			return
		}
		outcome := metrics.OutcomeSuccess
		switch {
		case d.Skipped:
			outcome = metrics.OutcomeSkipped
		case d.Err != nil:
			outcome = metrics.OutcomeError
		}
		m.RecordDispatch(d.Type, outcome, d.Duration)
		if d.Attempt > 1 && !d.Skipped {
			m.RecordRetry(d.Type)
		}
		for _, call := range d.Usage {
			m.RecordLLMCall(call.Model, call.InputTokens, call.OutputTokens, call.CostUSD)
		}
	})
}

func (e *Engine) skipScan(id, typ string) bool {
	for _, s := range e.opts.SkipOutputScan {
		if s == id || s == typ {
			return true
		}
	}
	return false
}

// resumeKey derives the checkpoint key for a run. Checkpoints are keyed
// by workflow name so a re-run can find the previous run's records; an
// unnamed workflow has no stable key and runs without checkpointing.
func (e *Engine) resumeKey(wfName string) string {
	if e.opts.Checkpoints == nil {
		return ""
	}
	if wfName == "" {
		e.logger.Warn("checkpointing disabled for this run; the workflow has no name to key resume records")
		return ""
	}
	return wfName
}

// seedStore validates caller inputs against the workflow's declarations
// and builds the initial store. Undeclared inputs, missing required
// inputs, and type mismatches all refuse the run.
func seedStore(wf *ir.Workflow, inputs map[string]types.Value) (*store.Shared, *types.RunError) {
	for name := range inputs {
		if _, ok := wf.Inputs[name]; !ok {
			return nil, types.Errorf(types.CategoryParam,
				"input %q is not declared by the workflow", name)
		}
	}
	seed := make(map[string]types.Value, len(wf.Inputs))
	for name, decl := range wf.Inputs {
		v, ok := inputs[name]
		if !ok {
			if !decl.Default.IsNull() {
				seed[name] = decl.Default
				continue
			}
			if decl.Required {
				return nil, types.Errorf(types.CategoryParam,
					"required input %q was not provided", name)
			}
			continue
		}
		if decl.Type != "" {
			want, err := types.ParseKind(decl.Type)
			if err == nil && v.Kind() != want {
				return nil, types.Errorf(types.CategoryParam,
					"input %q expects %s, got %s", name, want, v.Kind())
			}
		}
		seed[name] = v
	}
	return store.NewFrom(seed), nil
}

// surfaceOutputs resolves each declared output source against the final
// store. A source that fails to resolve drops the output and records a
// warning; under namespacing this is the only path a namespaced value
// takes into the result.
func (e *Engine) surfaceOutputs(wf *ir.Workflow, sh *store.Shared, warnings []types.RunWarning) (map[string]types.Value, []types.RunWarning) {
	outputs := make(map[string]types.Value, len(wf.Outputs))
	names := make([]string, 0, len(wf.Outputs))
	for name := range wf.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, fails := e.resolver.ResolveString(wf.Outputs[name].Source, sh)
		if len(fails) > 0 {
			f := fails[0]
			warnings = append(warnings, types.Warningf(types.WarnOutputMissing,
				f.TargetNode, "output %q: %s", name, f.Error()))
			continue
		}
		outputs[name] = v
	}
	return outputs, warnings
}

// repairContext assembles the handoff payload for a failed node, pulling
// the attempted path and field hints out of the error details when the
// failure was a template miss.
func repairContext(runID string, cn compiledNode, runErr *types.RunError) *types.RepairContext {
	if !runErr.Repairable {
		return nil
	}
	maxAttempts, _ := retryPolicy(cn.spec.Retry)
	rc := &types.RepairContext{
		RunID:       runID,
		NodeID:      cn.spec.ID,
		NodeType:    cn.spec.Type,
		Category:    runErr.Category,
		Message:     runErr.Message,
		Repairable:  runErr.Repairable,
		Attempt:     runErr.Attempt,
		MaxAttempts: maxAttempts,
		Params:      cn.spec.Params,
	}
	if p, ok := runErr.Details["attempted_path"]; ok {
		rc.AttemptedPath, _ = p.AsString()
	}
	if hints, ok := runErr.Details["available_fields"]; ok {
		rc.AvailableFields = hints.StringsIn()
	}
	return rc
}

func (e *Engine) writeTrace(a *trace.Artifact) string {
	if e.opts.TraceDir == "" {
		return ""
	}
	path := trace.FilePath(e.opts.TraceDir, a.RunID)
	if err := a.WriteFile(path); err != nil {
		e.logger.Warn("trace write failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

// saveHistory persists the artifact on its own context so a cancelled run
// still gets a history row.
func (e *Engine) saveHistory(a *trace.Artifact) {
	if e.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
	defer cancel()
	if err := e.opts.History.SaveRun(ctx, a); err != nil {
		e.logger.Warn("run history save failed", zap.String("run_id", a.RunID), zap.Error(err))
	}
}

// finalizeCheckpoints clears resume records once a run completes. Failed
// runs keep theirs; that is what resume reads.
func (e *Engine) finalizeCheckpoints(ctx context.Context, status types.RunStatus, key string) {
	if e.opts.Checkpoints == nil || key == "" || status == types.RunFailed {
		return
	}
	if err := e.opts.Checkpoints.Clear(ctx, key); err != nil {
		e.logger.Warn("checkpoint clear failed", zap.String("resume_key", key), zap.Error(err))
	}
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package engine

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cascadeflow/cascade/ir"
	"github.com/cascadeflow/cascade/types"
)

// maxSubflowDepth bounds workflow nesting. Each run is already hop
// limited; this guards the recursion a hop limit cannot see.
const maxSubflowDepth = 16

// Runner is the concurrent front door: it admits up to maxConcurrent
// runs at a time, each internally sequential. Callers that only ever run
// one workflow at a time can use the Engine directly.
type Runner struct {
	engine *Engine
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// NewRunner bounds an engine to maxConcurrent simultaneous runs. Values
// below one admit one run at a time.
func NewRunner(engine *Engine, maxConcurrent int64) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		engine: engine,
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: engine.logger.With(zap.String("component", "runner")),
	}
}

// Run blocks until a slot frees, then compiles and executes the workflow.
// A context cancelled while waiting returns without running anything.
func (r *Runner) Run(ctx context.Context, wf *ir.Workflow, inputs map[string]types.Value) (*Result, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, types.Errorf(types.CategoryCancelled,
			"cancelled while waiting for a run slot: %v", err).WithCause(err)
	}
	defer r.sem.Release(1)
	return r.engine.Run(ctx, wf, inputs)
}

// FileSubflowLoader loads subflows as IR files relative to baseDir. An
// absolute name ignores baseDir.
func FileSubflowLoader(baseDir string) func(ctx context.Context, name string) (*ir.Workflow, error) {
	return func(_ context.Context, name string) (*ir.Workflow, error) {
		path := name
		if baseDir != "" && !filepath.IsAbs(name) {
			path = filepath.Join(baseDir, name)
		}
		return ir.Load(path)
	}
}

type depthKey struct{}

func subflowDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// subflowRunner is the engine's registry.SubflowRunner. Child runs are
// full runs: own run ID, own usage collector, own trace artifact. The
// parent's subflow node folds the child's outputs and status into its own
// result.
type subflowRunner struct {
	engine *Engine
}

func (s *subflowRunner) RunSubflow(ctx context.Context, workflow string, inputs map[string]types.Value) (map[string]types.Value, types.RunStatus, error) {
	depth := subflowDepth(ctx) + 1
	if depth > maxSubflowDepth {
		return nil, types.RunFailed, types.Errorf(types.CategoryExecution,
			"subflow nesting exceeds %d levels at %q; the workflows likely recurse", maxSubflowDepth, workflow)
	}
	ctx = context.WithValue(ctx, depthKey{}, depth)

	wf, err := s.engine.opts.SubflowLoader(ctx, workflow)
	if err != nil {
		return nil, types.RunFailed, types.Errorf(types.CategoryResourceNotFound,
			"subflow %q: %v", workflow, err).WithCause(err)
	}
	res, err := s.engine.Run(ctx, wf, inputs)
	if err != nil {
		return nil, types.RunFailed, err
	}
	return res.Outputs, res.Status, nil
}

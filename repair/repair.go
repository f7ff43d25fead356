// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package repair declares how a planner consumes the structured errors the
runtime produces, and drives the run/revise/rerun loop around one.

The runtime never generates repairs itself: a failed node yields a
types.RepairContext, and whatever implements Planner decides what a
corrected workflow looks like. Loop is the mechanical part: run the
workflow, hand a repairable failure to the planner, run the revision,
bounded by a round budget.
*/
package repair

import (
	"context"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/engine"
	"github.com/cascadeflow/cascade/ir"
	"github.com/cascadeflow/cascade/types"
)

// DefaultMaxRounds bounds how many revisions a loop attempts.
const DefaultMaxRounds = 3

// Planner produces and revises workflows. Implementations are typically
// LLM-backed and live outside the runtime; the runtime defines only the
// contract.
type Planner interface {
	// Plan produces a workflow from a natural-language goal.
	Plan(ctx context.Context, goal string) (*ir.Workflow, error)

	// Revise proposes a corrected workflow after a failed run. The
	// repair context carries the failing node, category, attempted
	// template path, and the fields that were available.
	Revise(ctx context.Context, wf *ir.Workflow, rc *types.RepairContext) (*ir.Workflow, error)
}

// Executor runs a workflow. Both engine.Engine and engine.Runner satisfy
// it.
type Executor interface {
	Run(ctx context.Context, wf *ir.Workflow, inputs map[string]types.Value) (*engine.Result, error)
}

// Outcome is what a loop run produced: the last result, the workflow
// version that produced it, and how many runs it took.
type Outcome struct {
	Result   *engine.Result
	Workflow *ir.Workflow

	// Rounds counts runs, including the first.
	Rounds int

	// Revised reports whether any planner revision was applied.
	Revised bool
}

// Loop reruns a workflow with planner revisions until it stops failing
// repairably or the round budget is spent.
type Loop struct {
	executor  Executor
	planner   Planner
	maxRounds int
	logger    *zap.Logger
}

// NewLoop builds a repair loop. maxRounds values below one fall back to
// DefaultMaxRounds.
func NewLoop(executor Executor, planner Planner, maxRounds int, logger *zap.Logger) *Loop {
	if maxRounds < 1 {
		maxRounds = DefaultMaxRounds
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		executor:  executor,
		planner:   planner,
		maxRounds: maxRounds,
		logger:    logger.With(zap.String("component", "repair")),
	}
}

// Run executes wf, revising and rerunning on repairable failures. A
// non-repairable failure, a planner error, or an exhausted budget ends
// the loop with the last result; only a run that could not start at all
// returns an error.
func (l *Loop) Run(ctx context.Context, wf *ir.Workflow, inputs map[string]types.Value) (*Outcome, error) {
	out := &Outcome{Workflow: wf}

	for round := 0; ; round++ {
		res, err := l.executor.Run(ctx, wf, inputs)
		if err != nil {
			return nil, err
		}
		out.Result = res
		out.Workflow = wf
		out.Rounds = round + 1

		if res.Status != types.RunFailed || res.Repair == nil {
			return out, nil
		}
		if round+1 >= l.maxRounds {
			l.logger.Info("repair budget exhausted",
				zap.String("run_id", res.RunID),
				zap.Int("rounds", out.Rounds))
			return out, nil
		}

		l.logger.Info("requesting revision",
			zap.String("run_id", res.RunID),
			zap.String("node_id", res.Repair.NodeID),
			zap.String("category", string(res.Repair.Category)),
			zap.Int("round", out.Rounds))

		revised, err := l.planner.Revise(ctx, wf, res.Repair)
		if err != nil {
			l.logger.Warn("revision failed, keeping last result",
				zap.Error(err),
				zap.String("run_id", res.RunID))
			return out, nil
		}
		if revised == nil {
			return out, nil
		}
		wf = revised
		out.Revised = true
	}
}

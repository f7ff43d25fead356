// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"
	"fmt"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

// ErrorAction is the edge action a subflow node returns when its child
// run fails. Graphs route it to a handler node; with no matching edge the
// run simply ends.
const ErrorAction = "error"

func subflowEntry() registry.Entry {
	return registry.Entry{
		Type:        "subflow",
		Description: "Runs a named child workflow and folds its outputs into the node namespace.",
		Inputs: registry.Shape{
			"workflow": {Type: registry.TypeString, Required: true, Description: "child workflow name, resolved by the engine's subflow loader"},
			"inputs":   {Type: registry.TypeMap, Description: "inputs handed to the child run"},
		},
		// Child outputs are whatever the child workflow declares, so the
		// output shape stays open.
		Open: true,
		Factory: func(_ registry.Spec, env registry.Env) (node.Core, error) {
			runner := env.Subflow
			if runner == nil {
				return nil, fmt.Errorf("subflow requires an engine-managed environment")
			}
			return node.CoreFunc(func(ctx context.Context, call *node.Call) (node.Result, error) {
				name, err := requiredString(call, "workflow")
				if err != nil {
					return node.Result{}, err
				}
				var childInputs map[string]types.Value
				if iv, ok := call.Param("inputs"); ok && !iv.IsNull() {
					m, mok := iv.AsMap()
					if !mok {
						return node.Result{}, types.Errorf(types.CategoryParam,
							"param %q expects a map, got %s", "inputs", iv.Kind())
					}
					childInputs = m
				}

				outputs, status, err := runner.RunSubflow(ctx, name, childInputs)
				if err != nil {
					// The child could not start at all: missing workflow,
					// nesting bound, bad inputs. That is this node's own
					// failure, not a child result to route on.
					return node.Result{}, err
				}
				if status == types.RunFailed {
					w := types.Warningf(types.WarnSubflowFailed, nodeID(ctx), "subflow %q failed", name)
					return node.Result{Action: ErrorAction, Warnings: []types.RunWarning{w}}, nil
				}

				for k, v := range outputs {
					call.Store.Set(k, v)
				}
				call.Store.Set("subflow_status", types.NewString(string(status)))
				return node.Result{}, nil
			}), nil
		},
	}
}

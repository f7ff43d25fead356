// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"

	"github.com/cascadeflow/cascade/internal/ctxkeys"
	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/types"
)

func requiredString(call *node.Call, key string) (string, error) {
	v, ok := call.Param(key)
	if !ok || v.IsNull() {
		return "", types.Errorf(types.CategoryParam, "missing required param %q", key)
	}
	s, ok := v.AsString()
	if !ok {
		return "", types.Errorf(types.CategoryParam, "param %q expects a string, got %s", key, v.Kind())
	}
	return s, nil
}

func optString(call *node.Call, key, def string) (string, error) {
	v, ok := call.Param(key)
	if !ok || v.IsNull() {
		return def, nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", types.Errorf(types.CategoryParam, "param %q expects a string, got %s", key, v.Kind())
	}
	return s, nil
}

func optInt(call *node.Call, key string, def int) (int, error) {
	v, ok := call.Param(key)
	if !ok || v.IsNull() {
		return def, nil
	}
	i, ok := v.AsInt()
	if !ok {
		return 0, types.Errorf(types.CategoryParam, "param %q expects a number, got %s", key, v.Kind())
	}
	return i, nil
}

func optFloat(call *node.Call, key string, def float64) (float64, error) {
	v, ok := call.Param(key)
	if !ok || v.IsNull() {
		return def, nil
	}
	f, ok := v.AsNumber()
	if !ok {
		return 0, types.Errorf(types.CategoryParam, "param %q expects a number, got %s", key, v.Kind())
	}
	return f, nil
}

// listItems returns a required list parameter's elements.
func listItems(call *node.Call, key string) ([]types.Value, error) {
	v, ok := call.Param(key)
	if !ok || v.IsNull() {
		return nil, types.Errorf(types.CategoryParam, "missing required param %q", key)
	}
	items, ok := v.AsList()
	if !ok {
		return nil, types.Errorf(types.CategoryParam, "param %q expects a list, got %s", key, v.Kind())
	}
	return items, nil
}

func stringItem(key string, i int, v types.Value) (string, error) {
	s, ok := v.AsString()
	if !ok {
		return "", types.Errorf(types.CategoryParam, "param %q item %d expects a string, got %s", key, i, v.Kind())
	}
	return s, nil
}

// nodeID recovers the dispatching node's ID for warning attribution. The
// instrumentation layer stamps it on the context before the core runs.
func nodeID(ctx context.Context) string {
	id, _ := ctxkeys.NodeID(ctx)
	return id
}

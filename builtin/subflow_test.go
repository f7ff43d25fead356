// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

type fakeSubflow struct {
	outputs   map[string]types.Value
	status    types.RunStatus
	err       error
	gotName   string
	gotInputs map[string]types.Value
}

func (f *fakeSubflow) RunSubflow(_ context.Context, workflow string, inputs map[string]types.Value) (map[string]types.Value, types.RunStatus, error) {
	f.gotName = workflow
	f.gotInputs = inputs
	if f.err != nil {
		return nil, types.RunFailed, f.err
	}
	return f.outputs, f.status, nil
}

func TestSubflowSuccess(t *testing.T) {
	t.Parallel()

	runner := &fakeSubflow{
		outputs: map[string]types.Value{"result": types.NewString("done")},
		status:  types.RunSuccess,
	}
	core := buildCore(t, subflowEntry(), registry.Env{Subflow: runner})
	call := testCall(map[string]types.Value{
		"workflow": types.NewString("child"),
		"inputs":   types.NewMap(map[string]types.Value{"q": types.NewString("x")}),
	})

	res, err := core.Exec(context.Background(), call)
	require.NoError(t, err)
	assert.Empty(t, res.Action)

	assert.Equal(t, "child", runner.gotName)
	q, ok := runner.gotInputs["q"]
	require.True(t, ok)
	assert.Equal(t, "x", q.Text())

	result, ok := call.Store.Get("result")
	require.True(t, ok)
	assert.Equal(t, "done", result.Text())

	status, _ := call.Store.Get("subflow_status")
	assert.Equal(t, string(types.RunSuccess), status.Text())
}

func TestSubflowChildFailureRoutesErrorAction(t *testing.T) {
	t.Parallel()

	runner := &fakeSubflow{status: types.RunFailed}
	core := buildCore(t, subflowEntry(), registry.Env{Subflow: runner})
	call := testCall(map[string]types.Value{"workflow": types.NewString("child")})

	res, err := core.Exec(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, ErrorAction, res.Action)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, types.WarnSubflowFailed, res.Warnings[0].Code)
	assert.Contains(t, res.Warnings[0].Message, "child")

	// A failed child leaves nothing behind in the parent's namespace.
	_, ok := call.Store.Get("subflow_status")
	assert.False(t, ok)
}

func TestSubflowDegradedChildStillFoldsOutputs(t *testing.T) {
	t.Parallel()

	runner := &fakeSubflow{
		outputs: map[string]types.Value{"partial": types.NewString("p")},
		status:  types.RunDegraded,
	}
	core := buildCore(t, subflowEntry(), registry.Env{Subflow: runner})
	call := testCall(map[string]types.Value{"workflow": types.NewString("child")})

	res, err := core.Exec(context.Background(), call)
	require.NoError(t, err)
	assert.Empty(t, res.Action)

	partial, ok := call.Store.Get("partial")
	require.True(t, ok)
	assert.Equal(t, "p", partial.Text())

	status, _ := call.Store.Get("subflow_status")
	assert.Equal(t, string(types.RunDegraded), status.Text())
}

func TestSubflowRunnerErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("no workflow \"ghost\"")
	runner := &fakeSubflow{err: boom}
	core := buildCore(t, subflowEntry(), registry.Env{Subflow: runner})
	call := testCall(map[string]types.Value{"workflow": types.NewString("ghost")})

	_, err := core.Exec(context.Background(), call)
	require.ErrorIs(t, err, boom)
}

func TestSubflowRequiresRunner(t *testing.T) {
	t.Parallel()

	_, err := subflowEntry().Factory(registry.Spec{ID: "s", Type: "subflow"}, registry.Env{})
	require.Error(t, err)
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascade/classify"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

func TestShellCommand(t *testing.T) {
	t.Parallel()

	core := buildCore(t, shellCommandEntry(), registry.Env{ShellAllowlist: []string{"sh"}})
	call := testCall(map[string]types.Value{
		"command": types.NewString("sh"),
		"args":    types.NewList(types.NewString("-c"), types.NewString("printf hello")),
	})

	_, err := core.Exec(context.Background(), call)
	require.NoError(t, err)

	stdout, _ := call.Store.Get("stdout")
	assert.Equal(t, "hello", stdout.Text())

	code, _ := call.Store.Get("exit_code")
	n, _ := code.AsInt()
	assert.Equal(t, 0, n)
}

func TestShellCommandRefusedByDefault(t *testing.T) {
	t.Parallel()

	core := buildCore(t, shellCommandEntry(), registry.Env{})
	call := testCall(map[string]types.Value{"command": types.NewString("sh")})

	_, err := core.Exec(context.Background(), call)
	re, ok := types.AsRunError(err)
	require.True(t, ok)
	assert.Equal(t, types.CategoryValidation, re.Category)
	assert.False(t, re.Repairable)
	assert.Contains(t, re.Message, "allowlist")
}

func TestShellCommandNonZeroExit(t *testing.T) {
	t.Parallel()

	core := buildCore(t, shellCommandEntry(), registry.Env{ShellAllowlist: []string{"sh"}})
	call := testCall(map[string]types.Value{
		"command": types.NewString("sh"),
		"args":    types.NewList(types.NewString("-c"), types.NewString("echo oops >&2; exit 3")),
	})

	_, err := core.Exec(context.Background(), call)
	re, ok := types.AsRunError(err)
	require.True(t, ok)
	assert.Equal(t, types.CategoryExecution, re.Category)
	assert.Contains(t, re.Message, "exited with code 3")
	assert.Contains(t, re.Message, "oops")

	code, _ := call.Store.Get("exit_code")
	n, _ := code.AsInt()
	assert.Equal(t, 3, n)

	stderr, _ := call.Store.Get("stderr")
	assert.Contains(t, stderr.Text(), "oops")
}

func TestShellCommandTimeout(t *testing.T) {
	t.Parallel()

	core := buildCore(t, shellCommandEntry(), registry.Env{ShellAllowlist: []string{"sh"}})
	call := testCall(map[string]types.Value{
		"command":    types.NewString("sh"),
		"args":       types.NewList(types.NewString("-c"), types.NewString("sleep 5")),
		"timeout_ms": types.NewInt(50),
	})

	start := time.Now()
	_, err := core.Exec(context.Background(), call)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	re := classify.Error("n", err)
	assert.Equal(t, types.CategoryTimeout, re.Category)
}

func TestShellCommandStdin(t *testing.T) {
	t.Parallel()

	core := buildCore(t, shellCommandEntry(), registry.Env{ShellAllowlist: []string{"sh"}})
	call := testCall(map[string]types.Value{
		"command": types.NewString("sh"),
		"args":    types.NewList(types.NewString("-c"), types.NewString("cat")),
		"stdin":   types.NewString("fed"),
	})

	_, err := core.Exec(context.Background(), call)
	require.NoError(t, err)

	stdout, _ := call.Store.Get("stdout")
	assert.Equal(t, "fed", stdout.Text())
}

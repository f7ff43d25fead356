// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

// stderrTailBytes bounds how much stderr lands in an error message.
const stderrTailBytes = 512

func shellCommandEntry() registry.Entry {
	return registry.Entry{
		Type:        "shell_command",
		Description: "Runs an allowlisted binary and captures its output.",
		Inputs: registry.Shape{
			"command":    {Type: registry.TypeString, Required: true, Description: "binary to run; must exactly match an allowlist entry"},
			"args":       {Type: registry.TypeList, Elem: &registry.Field{Type: registry.TypeString}},
			"stdin":      {Type: registry.TypeString},
			"timeout_ms": {Type: registry.TypeNumber, Description: "kill the command after this many milliseconds"},
		},
		Outputs: registry.Shape{
			"stdout":    {Type: registry.TypeString},
			"stderr":    {Type: registry.TypeString},
			"exit_code": {Type: registry.TypeNumber},
		},
		Factory: func(_ registry.Spec, env registry.Env) (node.Core, error) {
			allow := append([]string(nil), env.ShellAllowlist...)
			return node.CoreFunc(func(ctx context.Context, call *node.Call) (node.Result, error) {
				command, err := requiredString(call, "command")
				if err != nil {
					return node.Result{}, err
				}
				if !allowed(allow, command) {
					return node.Result{}, types.Errorf(types.CategoryValidation,
						"command %q is not in the shell allowlist", command).WithRepairable(false)
				}

				var args []string
				if av, ok := call.Param("args"); ok && !av.IsNull() {
					items, lok := av.AsList()
					if !lok {
						return node.Result{}, types.Errorf(types.CategoryParam,
							"param %q expects a list, got %s", "args", av.Kind())
					}
					for i, item := range items {
						s, serr := stringItem("args", i, item)
						if serr != nil {
							return node.Result{}, serr
						}
						args = append(args, s)
					}
				}
				stdin, err := optString(call, "stdin", "")
				if err != nil {
					return node.Result{}, err
				}
				timeoutMS, err := optInt(call, "timeout_ms", 0)
				if err != nil {
					return node.Result{}, err
				}
				if timeoutMS > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
					defer cancel()
				}

				cmd := exec.CommandContext(ctx, command, args...)
				var stdout, stderr bytes.Buffer
				cmd.Stdout = &stdout
				cmd.Stderr = &stderr
				if stdin != "" {
					cmd.Stdin = strings.NewReader(stdin)
				}

				runErr := cmd.Run()
				exitCode := 0
				var exitErr *exec.ExitError
				if errors.As(runErr, &exitErr) {
					exitCode = exitErr.ExitCode()
				}
				call.Store.Set("stdout", types.NewString(stdout.String()))
				call.Store.Set("stderr", types.NewString(stderr.String()))
				call.Store.Set("exit_code", types.NewInt(exitCode))

				if runErr != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						// Deadline and cancellation classify themselves.
						return node.Result{}, fmt.Errorf("command %q did not finish: %w", command, ctxErr)
					}
					return node.Result{}, types.Errorf(types.CategoryExecution,
						"command %q exited with code %d: %s", command, exitCode, tail(stderr.String(), stderrTailBytes)).
						WithCause(runErr).
						WithDetail("exit_code", types.NewInt(exitCode))
				}
				return node.Result{}, nil
			}), nil
		},
	}
}

func allowed(allowlist []string, command string) bool {
	for _, entry := range allowlist {
		if entry == command {
			return true
		}
	}
	return false
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

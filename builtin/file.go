// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

// resolvePath roots a relative path in baseDir. Absolute paths pass
// through untouched.
func resolvePath(baseDir, path string) string {
	if baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func readFileEntry() registry.Entry {
	return registry.Entry{
		Type:        "read_file",
		Description: "Reads a text file into the node namespace.",
		Inputs: registry.Shape{
			"path": {Type: registry.TypeString, Required: true, Description: "file to read, relative paths rooted in the configured base directory"},
		},
		Outputs: registry.Shape{
			"content": {Type: registry.TypeString, Description: "file contents"},
			"path":    {Type: registry.TypeString, Description: "resolved path that was read"},
			"size":    {Type: registry.TypeNumber, Description: "content length in bytes"},
		},
		Factory: func(_ registry.Spec, env registry.Env) (node.Core, error) {
			baseDir := env.BaseDir
			return node.CoreFunc(func(_ context.Context, call *node.Call) (node.Result, error) {
				path, err := requiredString(call, "path")
				if err != nil {
					return node.Result{}, err
				}
				resolved := resolvePath(baseDir, path)
				data, err := os.ReadFile(resolved)
				if err != nil {
					return node.Result{}, fmt.Errorf("reading %s: %w", resolved, err)
				}
				call.Store.Set("content", types.NewString(string(data)))
				call.Store.Set("path", types.NewString(resolved))
				call.Store.Set("size", types.NewInt(len(data)))
				return node.Result{}, nil
			}), nil
		},
	}
}

func writeFileEntry() registry.Entry {
	return registry.Entry{
		Type:        "write_file",
		Description: "Writes content to a file, creating parent directories as needed.",
		Inputs: registry.Shape{
			"path":    {Type: registry.TypeString, Required: true, Description: "file to write, relative paths rooted in the configured base directory"},
			"content": {Type: registry.TypeAny, Required: true, Description: "value to write; non-strings are rendered as text"},
		},
		Outputs: registry.Shape{
			"path":  {Type: registry.TypeString, Description: "resolved path that was written"},
			"bytes": {Type: registry.TypeNumber, Description: "bytes written"},
		},
		Factory: func(_ registry.Spec, env registry.Env) (node.Core, error) {
			baseDir := env.BaseDir
			return node.CoreFunc(func(_ context.Context, call *node.Call) (node.Result, error) {
				path, err := requiredString(call, "path")
				if err != nil {
					return node.Result{}, err
				}
				content, ok := call.Param("content")
				if !ok || content.IsNull() {
					return node.Result{}, types.Errorf(types.CategoryParam, "missing required param %q", "content")
				}
				text := content.Text()
				resolved := resolvePath(baseDir, path)
				if dir := filepath.Dir(resolved); dir != "." {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return node.Result{}, fmt.Errorf("creating directory %s: %w", dir, err)
					}
				}
				if err := os.WriteFile(resolved, []byte(text), 0o644); err != nil {
					return node.Result{}, fmt.Errorf("writing %s: %w", resolved, err)
				}
				call.Store.Set("path", types.NewString(resolved))
				call.Store.Set("bytes", types.NewInt(len(text)))
				return node.Result{}, nil
			}), nil
		},
	}
}

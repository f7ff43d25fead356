// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"
	"fmt"
	"os"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

// truncateItems applies the run's batch limit: a limit of zero or less
// passes everything through, a positive limit keeps the first limit items
// in their original order. The warning is non-nil only when truncation
// actually removed items.
func truncateItems(nodeID string, items []types.Value, limit int) ([]types.Value, *types.RunWarning) {
	if limit <= 0 || len(items) <= limit {
		return items, nil
	}
	w := types.Warningf(types.WarnBatchTruncated, nodeID,
		"batch limit %d reduced the item list: processed %d of %d items", limit, limit, len(items))
	return items[:limit], &w
}

func readFileBatchEntry() registry.Entry {
	return registry.Entry{
		Type:        "read_file_batch",
		Description: "Reads a list of text files, bounded by the run's batch limit.",
		Inputs: registry.Shape{
			"paths": {Type: registry.TypeList, Required: true, Elem: &registry.Field{Type: registry.TypeString}},
		},
		Outputs: registry.Shape{
			"contents":  {Type: registry.TypeList, Elem: &registry.Field{Type: registry.TypeString}, Description: "file contents in input order"},
			"processed": {Type: registry.TypeNumber, Description: "items actually read"},
			"total":     {Type: registry.TypeNumber, Description: "items requested"},
		},
		Factory: func(_ registry.Spec, env registry.Env) (node.Core, error) {
			baseDir := env.BaseDir
			limit := env.BatchLimit
			return node.CoreFunc(func(ctx context.Context, call *node.Call) (node.Result, error) {
				items, err := listItems(call, "paths")
				if err != nil {
					return node.Result{}, err
				}
				total := len(items)
				items, warning := truncateItems(nodeID(ctx), items, limit)

				contents := make([]types.Value, 0, len(items))
				for i, item := range items {
					path, serr := stringItem("paths", i, item)
					if serr != nil {
						return node.Result{}, serr
					}
					resolved := resolvePath(baseDir, path)
					data, rerr := os.ReadFile(resolved)
					if rerr != nil {
						return node.Result{}, fmt.Errorf("reading %s: %w", resolved, rerr)
					}
					contents = append(contents, types.NewString(string(data)))
				}

				call.Store.Set("contents", types.NewList(contents...))
				call.Store.Set("processed", types.NewInt(len(contents)))
				call.Store.Set("total", types.NewInt(total))

				var res node.Result
				if warning != nil {
					res.Warnings = append(res.Warnings, *warning)
				}
				return res, nil
			}), nil
		},
	}
}

func llmGenerateBatchEntry() registry.Entry {
	return registry.Entry{
		Type:        "llm_generate_batch",
		Description: "Sends a list of prompts to the configured LLM provider sequentially, bounded by the run's batch limit.",
		Inputs: llmInputShape("prompts", registry.Field{
			Type: registry.TypeList, Required: true, Elem: &registry.Field{Type: registry.TypeString},
		}),
		Outputs: registry.Shape{
			"texts":     {Type: registry.TypeList, Elem: &registry.Field{Type: registry.TypeString}, Description: "completions in prompt order"},
			"processed": {Type: registry.TypeNumber, Description: "prompts actually sent"},
			"total":     {Type: registry.TypeNumber, Description: "prompts requested"},
		},
		Factory: func(_ registry.Spec, env registry.Env) (node.Core, error) {
			provider := env.LLM
			if provider == nil {
				return nil, fmt.Errorf("llm_generate_batch requires a configured LLM provider")
			}
			limit := env.BatchLimit
			return node.CoreFunc(func(ctx context.Context, call *node.Call) (node.Result, error) {
				items, err := listItems(call, "prompts")
				if err != nil {
					return node.Result{}, err
				}
				total := len(items)
				items, warning := truncateItems(nodeID(ctx), items, limit)

				texts := make([]types.Value, 0, len(items))
				for i, item := range items {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return node.Result{}, fmt.Errorf("batch stopped after %d of %d prompts: %w", i, len(items), ctxErr)
					}
					prompt, serr := stringItem("prompts", i, item)
					if serr != nil {
						return node.Result{}, serr
					}
					req, rerr := chatRequest(call, prompt)
					if rerr != nil {
						return node.Result{}, rerr
					}
					resp, cerr := provider.Completion(ctx, req)
					if cerr != nil {
						return node.Result{}, fmt.Errorf("llm completion for prompt %d: %w", i, cerr)
					}
					texts = append(texts, types.NewString(resp.Text()))
				}

				call.Store.Set("texts", types.NewList(texts...))
				call.Store.Set("processed", types.NewInt(len(texts)))
				call.Store.Set("total", types.NewInt(total))

				var res node.Result
				if warning != nil {
					res.Warnings = append(res.Warnings, *warning)
				}
				return res, nil
			}), nil
		},
	}
}

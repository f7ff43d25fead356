// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package toolnode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

// entry wraps a discovered tool as a registry entry. The output shape is
// open: what a tool returns is its own business.
func (r *Resolver) entry(typ string, handle *serverHandle, tool *mcp.Tool) registry.Entry {
	return registry.Entry{
		Type:        typ,
		Description: tool.Description,
		Inputs:      shapeFromSchema(tool.InputSchema),
		Open:        true,
		Factory: func(_ registry.Spec, _ registry.Env) (node.Core, error) {
			return &toolCore{session: handle.session, tool: tool.Name}, nil
		},
	}
}

// toolCore forwards node parameters as tool arguments.
type toolCore struct {
	session *mcp.ClientSession
	tool    string
}

func (c *toolCore) Exec(ctx context.Context, call *node.Call) (node.Result, error) {
	args := make(map[string]any, len(call.Params))
	for k, v := range call.Params {
		args[k] = v.Interface()
	}

	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      c.tool,
		Arguments: args,
	})
	if err != nil {
		return node.Result{}, fmt.Errorf("calling tool %q: %w", c.tool, err)
	}
	if res.IsError {
		return node.Result{}, types.Errorf(types.CategoryExecution,
			"tool %q reported an error: %s", c.tool, resultText(res))
	}

	return node.Result{}, foldResult(call, res)
}

// foldResult writes the tool result into the node namespace. Structured
// content wins; otherwise text content that parses as a JSON object is
// exploded into fields, and anything else lands under "text".
func foldResult(call *node.Call, res *mcp.CallToolResult) error {
	if res.StructuredContent != nil {
		v, err := types.FromAny(res.StructuredContent)
		if err != nil {
			return fmt.Errorf("tool result: %w", err)
		}
		if fields, ok := v.AsMap(); ok {
			for k, fv := range fields {
				call.Store.Set(k, fv)
			}
			return nil
		}
		call.Store.Set("result", v)
		return nil
	}

	text := resultText(res)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		fields, err := types.FromAnyMap(decoded)
		if err != nil {
			return fmt.Errorf("tool result: %w", err)
		}
		for k, fv := range fields {
			call.Store.Set(k, fv)
		}
		return nil
	}
	call.Store.Set("text", types.NewString(text))
	return nil
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

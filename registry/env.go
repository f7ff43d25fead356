// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package registry

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/llm"
	"github.com/cascadeflow/cascade/types"
)

// SubflowRunner executes a named child workflow. The engine implements
// it; factories receive it through Env so the subflow node type can exist
// without the registry depending on the engine.
type SubflowRunner interface {
	RunSubflow(ctx context.Context, workflow string, inputs map[string]types.Value) (map[string]types.Value, types.RunStatus, error)
}

// Env carries the shared services factories wire into their cores. Fields
// a factory does not need stay nil; factories that require one report a
// compile error when it is missing.
type Env struct {
	Logger *zap.Logger

	// LLM is the provider the llm node type calls.
	LLM llm.Provider

	// Subflow runs child workflows.
	Subflow SubflowRunner

	// HTTPClient is shared by nodes that make outbound requests.
	HTTPClient *http.Client

	// BaseDir roots relative paths for file nodes.
	BaseDir string

	// BatchLimit caps batch node expansion. Zero means the built-in
	// default.
	BatchLimit int

	// ShellAllowlist restricts which binaries the shell node may run.
	// Empty means the node refuses everything.
	ShellAllowlist []string
}

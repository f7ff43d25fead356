// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascade/llm"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

// fakeProvider echoes the last user message, prefixed, and records every
// request it saw.
type fakeProvider struct {
	calls []llm.ChatRequest
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls = append(f.calls, *req)
	if f.err != nil {
		return nil, f.err
	}
	last := req.Messages[len(req.Messages)-1]
	return &llm.ChatResponse{
		Model:   "fake-1",
		Message: llm.Message{Role: llm.RoleAssistant, Content: "echo " + last.Content},
		Usage:   llm.ChatUsage{TotalTokens: 9},
	}, nil
}

func TestLLMGenerate(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	core := buildCore(t, llmGenerateEntry(), registry.Env{LLM: provider})
	call := testCall(map[string]types.Value{
		"prompt":     types.NewString("hi"),
		"system":     types.NewString("be brief"),
		"model":      types.NewString("m1"),
		"max_tokens": types.NewInt(64),
	})

	_, err := core.Exec(context.Background(), call)
	require.NoError(t, err)

	text, _ := call.Store.Get("text")
	assert.Equal(t, "echo hi", text.Text())
	model, _ := call.Store.Get("model")
	assert.Equal(t, "fake-1", model.Text())
	tokens, _ := call.Store.Get("tokens")
	n, _ := tokens.AsInt()
	assert.Equal(t, 9, n)

	require.Len(t, provider.calls, 1)
	req := provider.calls[0]
	assert.Equal(t, "m1", req.Model)
	assert.Equal(t, 64, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)
	assert.Equal(t, "hi", req.Messages[1].Content)
}

func TestLLMGenerateRequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := llmGenerateEntry().Factory(registry.Spec{ID: "g", Type: "llm_generate"}, registry.Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider")
}

func TestLLMGenerateProviderError(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{err: errors.New("rate limited")}
	core := buildCore(t, llmGenerateEntry(), registry.Env{LLM: provider})
	call := testCall(map[string]types.Value{"prompt": types.NewString("hi")})

	_, err := core.Exec(context.Background(), call)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm completion")
	assert.Contains(t, err.Error(), "rate limited")
}

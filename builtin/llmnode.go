// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import (
	"context"
	"fmt"

	"github.com/cascadeflow/cascade/llm"
	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/types"
)

func llmGenerateEntry() registry.Entry {
	return registry.Entry{
		Type:        "llm_generate",
		Description: "Sends a prompt to the configured LLM provider and captures the completion.",
		Inputs:      llmInputShape("prompt", registry.Field{Type: registry.TypeString, Required: true}),
		Outputs: registry.Shape{
			"text":   {Type: registry.TypeString, Description: "completion text"},
			"model":  {Type: registry.TypeString, Description: "model that produced the completion"},
			"tokens": {Type: registry.TypeNumber, Description: "total tokens reported for the exchange"},
		},
		Factory: func(_ registry.Spec, env registry.Env) (node.Core, error) {
			provider := env.LLM
			if provider == nil {
				return nil, fmt.Errorf("llm_generate requires a configured LLM provider")
			}
			return node.CoreFunc(func(ctx context.Context, call *node.Call) (node.Result, error) {
				prompt, err := requiredString(call, "prompt")
				if err != nil {
					return node.Result{}, err
				}
				req, err := chatRequest(call, prompt)
				if err != nil {
					return node.Result{}, err
				}
				resp, err := provider.Completion(ctx, req)
				if err != nil {
					return node.Result{}, fmt.Errorf("llm completion: %w", err)
				}
				call.Store.Set("text", types.NewString(resp.Text()))
				call.Store.Set("model", types.NewString(resp.Model))
				call.Store.Set("tokens", types.NewInt(resp.Usage.TotalTokens))
				return node.Result{}, nil
			}), nil
		},
	}
}

// llmInputShape is the shared parameter surface of the LLM node types; only
// the prompt-carrying field differs between the single and batch variants.
func llmInputShape(promptKey string, promptField registry.Field) registry.Shape {
	return registry.Shape{
		promptKey:     promptField,
		"model":       {Type: registry.TypeString, Description: "override the provider's default model"},
		"system":      {Type: registry.TypeString, Description: "system prompt"},
		"max_tokens":  {Type: registry.TypeNumber},
		"temperature": {Type: registry.TypeNumber},
	}
}

// chatRequest assembles the provider request from the node's common
// parameters plus the given user prompt.
func chatRequest(call *node.Call, prompt string) (*llm.ChatRequest, error) {
	model, err := optString(call, "model", "")
	if err != nil {
		return nil, err
	}
	system, err := optString(call, "system", "")
	if err != nil {
		return nil, err
	}
	maxTokens, err := optInt(call, "max_tokens", 0)
	if err != nil {
		return nil, err
	}
	temperature, err := optFloat(call, "temperature", 0)
	if err != nil {
		return nil, err
	}

	var messages []llm.Message
	if system != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	return &llm.ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	}, nil
}

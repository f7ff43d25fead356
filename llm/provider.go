// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package llm is the model-client plumbing the llm node type runs on: a
provider interface, a middleware chain for the cross-cutting pieces
(logging, rate limiting, usage capture), an OpenAI-compatible provider,
and token estimation for providers that omit usage counts.
*/
package llm

import (
	"context"
	"time"
)

// ErrorCode aligns provider failures with retryability and the runtime's
// error classifier.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized     ErrorCode = "LLM_UNAUTHORIZED"
	ErrRateLimited      ErrorCode = "LLM_RATE_LIMITED"
	ErrModelNotFound    ErrorCode = "LLM_MODEL_NOT_FOUND"
	ErrContentFiltered  ErrorCode = "LLM_CONTENT_FILTERED"
	ErrUpstreamTimeout  ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError    ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrProviderDisabled ErrorCode = "LLM_PROVIDER_DISABLED"
)

// Error is a provider failure with enough structure for the classifier.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Role identifies a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a synchronous completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// ChatUsage reports token consumption. Estimated marks counts the
// provider did not return and the tokenizer filled in.
type ChatUsage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
	Estimated        bool    `json:"estimated,omitempty"`
}

// ChatResponse is a completed exchange.
type ChatResponse struct {
	ID           string    `json:"id,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model"`
	Message      Message   `json:"message"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        ChatUsage `json:"usage,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Text returns the response content.
func (r *ChatResponse) Text() string { return r.Message.Content }

// Provider is the synchronous completion contract the runtime consumes.
// The engine dispatches one node at a time, so streaming stays out of the
// core interface.
type Provider interface {
	Name() string
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

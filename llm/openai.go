// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible provider. BaseURL covers
// any endpoint speaking the chat-completions dialect, local inference
// servers included.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OpenAI is a Provider over the OpenAI chat completions API.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAI builds the provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	}
	return &OpenAI{
		client:       openai.NewClientWithConfig(c),
		defaultModel: cfg.Model,
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

// Completion implements Provider.
func (o *OpenAI) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}
	oreq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}

	oresp, err := o.client.CreateChatCompletion(ctx, oreq)
	if err != nil {
		return nil, o.wrapErr(err)
	}
	return fromOpenAIResponse(model, &oresp), nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func fromOpenAIResponse(model string, oresp *openai.ChatCompletionResponse) *ChatResponse {
	resp := &ChatResponse{
		ID:       oresp.ID,
		Provider: "openai",
		Model:    oresp.Model,
		Usage: ChatUsage{
			PromptTokens:     oresp.Usage.PromptTokens,
			CompletionTokens: oresp.Usage.CompletionTokens,
			TotalTokens:      oresp.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(oresp.Created, 0),
	}
	if resp.Model == "" {
		resp.Model = model
	}
	if len(oresp.Choices) > 0 {
		choice := oresp.Choices[0]
		resp.Message = Message{
			Role:    Role(choice.Message.Role),
			Content: choice.Message.Content,
		}
		resp.FinishReason = string(choice.FinishReason)
	}
	return resp
}

func (o *OpenAI) wrapErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &Error{
			Message:    apiErr.Message,
			HTTPStatus: apiErr.HTTPStatusCode,
			Provider:   o.Name(),
		}
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized,
			apiErr.HTTPStatusCode == http.StatusForbidden:
			e.Code = ErrUnauthorized
		case apiErr.HTTPStatusCode == http.StatusNotFound:
			e.Code = ErrModelNotFound
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			e.Code = ErrRateLimited
			e.Retryable = true
		case apiErr.HTTPStatusCode >= 500:
			e.Code = ErrUpstreamError
			e.Retryable = true
		default:
			e.Code = ErrInvalidRequest
		}
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code:      ErrUpstreamTimeout,
			Message:   err.Error(),
			Retryable: true,
			Provider:  o.Name(),
		}
	}
	return err
}

var _ Provider = (*OpenAI)(nil)

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cascadeflow/cascade/internal/ctxkeys"
	"github.com/cascadeflow/cascade/types"
	"github.com/cascadeflow/cascade/usage"
)

// Handler processes a request and returns a response.
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware wraps a handler with additional behavior.
type Middleware func(next Handler) Handler

// Apply wraps a provider so every Completion call passes through the
// middleware, first listed outermost.
func Apply(p Provider, mws ...Middleware) Provider {
	h := p.Completion
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return &wrapped{name: p.Name(), handler: h}
}

type wrapped struct {
	name    string
	handler Handler
}

func (w *wrapped) Name() string { return w.name }

func (w *wrapped) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return w.handler(ctx, req)
}

// WithLogging logs one line per request and one per outcome.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"))
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			logger.Debug("completion request",
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)))
			resp, err := next(ctx, req)
			if err != nil {
				logger.Warn("completion failed",
					zap.String("model", req.Model),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err))
				return nil, err
			}
			logger.Debug("completion ok",
				zap.String("model", resp.Model),
				zap.Int("total_tokens", resp.Usage.TotalTokens),
				zap.Duration("duration", time.Since(start)))
			return resp, nil
		}
	}
}

// WithRateLimit blocks until the limiter grants a slot, honoring context
// cancellation.
func WithRateLimit(limiter *rate.Limiter) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			return next(ctx, req)
		}
	}
}

// WithTimeout bounds each request, preferring the request's own timeout
// when one is set.
func WithTimeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			timeout := d
			if req.Timeout > 0 {
				timeout = req.Timeout
			}
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// WithUsageCapture converts each completed exchange into a call record
// and hands it to the usage layer, which routes it to the run that owns
// this context. Token counts missing from the response are estimated so
// the record is never empty. Planner marks calls made on behalf of the
// planning loop rather than a workflow node.
func WithUsageCapture(est *Estimator, pricing Pricing, planner bool) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			rec := types.LLMCallRecord{
				Model:      req.Model,
				Planner:    planner,
				StartedAt:  start,
				DurationMS: time.Since(start).Milliseconds(),
			}
			if id, ok := ctxkeys.NodeID(ctx); ok {
				rec.NodeID = id
			}
			if err != nil {
				rec.Error = err.Error()
				usage.Capture(ctx, rec)
				return nil, err
			}
			rec.Provider = resp.Provider
			if resp.Model != "" {
				rec.Model = resp.Model
			}
			rec.Prompt = promptText(req)
			rec.Response = resp.Text()
			u := resp.Usage
			if u.TotalTokens == 0 && est != nil {
				u.PromptTokens = est.CountMessages(req.Model, req.Messages)
				u.CompletionTokens = est.CountText(req.Model, resp.Text())
				u.TotalTokens = u.PromptTokens + u.CompletionTokens
				u.Estimated = true
			}
			if u.CostUSD == 0 {
				u.CostUSD = pricing.Cost(rec.Model, u.PromptTokens, u.CompletionTokens)
			}
			rec.InputTokens = u.PromptTokens
			rec.OutputTokens = u.CompletionTokens
			rec.TotalTokens = u.TotalTokens
			rec.CostUSD = u.CostUSD
			resp.Usage = u
			usage.Capture(ctx, rec)
			return resp, nil
		}
	}
}

func promptText(req *ChatRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

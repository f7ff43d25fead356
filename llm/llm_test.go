// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cascadeflow/cascade/internal/ctxkeys"
	"github.com/cascadeflow/cascade/usage"
)

type fakeProvider struct {
	resp *ChatResponse
	err  error
	got  *ChatRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Completion(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestApplyOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	p := Apply(&fakeProvider{resp: &ChatResponse{Model: "m"}}, mark("outer"), mark("inner"))
	require.Equal(t, "fake", p.Name())

	_, err := p.Completion(context.Background(), &ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestWithUsageCapture(t *testing.T) {
	t.Parallel()

	inner := &fakeProvider{resp: &ChatResponse{
		Provider: "fake",
		Model:    "gpt-4o-mini",
		Message:  Message{Role: RoleAssistant, Content: "four words of reply"},
		Usage:    ChatUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}}
	p := Apply(inner, WithUsageCapture(nil, DefaultPricing(), false))

	collector := usage.NewCollector()
	ctx := usage.WithCollector(context.Background(), collector)
	ctx = ctxkeys.WithNodeID(ctx, "summarize")

	resp, err := p.Completion(ctx, &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "summarize this"}},
	})
	require.NoError(t, err)

	recs := collector.Records()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "summarize", rec.NodeID)
	assert.Equal(t, "gpt-4o-mini", rec.Model)
	assert.Equal(t, 100, rec.InputTokens)
	assert.Equal(t, 20, rec.OutputTokens)
	assert.Equal(t, "summarize this", rec.Prompt)
	assert.Equal(t, "four words of reply", rec.Response)
	assert.False(t, rec.Planner)
	assert.InDelta(t, 100*0.15/1e6+20*0.60/1e6, rec.CostUSD, 1e-12)
	assert.Equal(t, rec.CostUSD, resp.Usage.CostUSD)
}

func TestWithUsageCaptureEstimatesMissingCounts(t *testing.T) {
	t.Parallel()

	inner := &fakeProvider{resp: &ChatResponse{
		Model:   "local-llama",
		Message: Message{Role: RoleAssistant, Content: "a reasonably sized answer to count"},
	}}
	p := Apply(inner, WithUsageCapture(NewEstimator(), Pricing{}, true))

	collector := usage.NewCollector()
	ctx := usage.WithCollector(context.Background(), collector)

	resp, err := p.Completion(ctx, &ChatRequest{
		Model:    "local-llama",
		Messages: []Message{{Role: RoleUser, Content: "please answer at length"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Usage.Estimated)
	assert.Positive(t, resp.Usage.TotalTokens)

	recs := collector.Records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Planner)
	assert.Positive(t, recs[0].TotalTokens)
}

func TestWithUsageCaptureRecordsErrors(t *testing.T) {
	t.Parallel()

	inner := &fakeProvider{err: errors.New("upstream exploded")}
	p := Apply(inner, WithUsageCapture(nil, nil, false))

	collector := usage.NewCollector()
	ctx := usage.WithCollector(context.Background(), collector)

	_, err := p.Completion(ctx, &ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	recs := collector.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "upstream exploded", recs[0].Error)
	assert.Equal(t, "gpt-4o", recs[0].Model)
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()

	inner := &fakeProvider{resp: &ChatResponse{Model: "m"}}

	p := Apply(inner, WithRateLimit(nil))
	_, err := p.Completion(context.Background(), &ChatRequest{})
	require.NoError(t, err)

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = Apply(inner, WithRateLimit(limiter))
	_, err = p.Completion(ctx, &ChatRequest{})
	require.Error(t, err)
}

func TestWithTimeoutSetsDeadline(t *testing.T) {
	t.Parallel()

	var saw time.Time
	h := WithTimeout(time.Minute)(func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
		dl, ok := ctx.Deadline()
		require.True(t, ok)
		saw = dl
		return &ChatResponse{}, nil
	})

	_, err := h(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), saw, 5*time.Second)

	// A request-level timeout wins over the middleware default.
	_, err = h(context.Background(), &ChatRequest{Timeout: time.Second})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Second), saw, 500*time.Millisecond)
}

func TestPricingCost(t *testing.T) {
	t.Parallel()

	p := DefaultPricing()

	assert.InDelta(t, 0.15+0.60, p.Cost("gpt-4o-mini", 1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 2.50/1e6*1000, p.Cost("gpt-4o-2024-08-06", 1000, 0), 1e-12)

	// The longest prefix wins when several match.
	mini := p.Cost("gpt-4o-mini-2024-07-18", 1_000_000, 0)
	assert.InDelta(t, 0.15, mini, 1e-9)

	assert.Zero(t, p.Cost("mystery-model", 5000, 5000))
}

func TestEncodingFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "o200k_base", encodingFor("gpt-4o"))
	assert.Equal(t, "o200k_base", encodingFor("gpt-4o-mini-2024-07-18"))
	assert.Equal(t, "cl100k_base", encodingFor("gpt-3.5-turbo-0125"))
	assert.Equal(t, "cl100k_base", encodingFor("totally-unknown"))
}

func TestApproxTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, approxTokens("hi"))
	assert.Equal(t, 3, approxTokens("twelve chars"))
}

func TestOpenAIMessageMapping(t *testing.T) {
	t.Parallel()

	msgs := toOpenAIMessages([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "hello", msgs[1].Content)

	oresp := &openai.ChatCompletionResponse{
		ID:      "chatcmpl-1",
		Model:   "gpt-4o-mini",
		Created: 1700000000,
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "hi"},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 9, CompletionTokens: 1, TotalTokens: 10},
	}
	resp := fromOpenAIResponse("requested-model", oresp)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, "hi", resp.Text())
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}

func TestOpenAIErrorMapping(t *testing.T) {
	t.Parallel()

	o := NewOpenAI(OpenAIConfig{APIKey: "test"})

	cases := []struct {
		status    int
		wantCode  ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusNotFound, ErrModelNotFound, false},
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusBadGateway, ErrUpstreamError, true},
		{http.StatusBadRequest, ErrInvalidRequest, false},
	}
	for _, tc := range cases {
		err := o.wrapErr(&openai.APIError{HTTPStatusCode: tc.status, Message: "nope"})
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, tc.wantCode, e.Code, "status %d", tc.status)
		assert.Equal(t, tc.retryable, e.Retryable, "status %d", tc.status)
	}

	err := o.wrapErr(context.DeadlineExceeded)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrUpstreamTimeout, e.Code)
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	payload, ok := c.entries[key]
	return payload, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = payload
	c.ttls[key] = ttl
	return nil
}

func TestWithCacheServesRepeatRequests(t *testing.T) {
	t.Parallel()

	calls := 0
	upstream := func(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
		calls++
		return &ChatResponse{Model: req.Model, Message: Message{Role: RoleAssistant, Content: "pong"}}, nil
	}
	cache := newMemCache()
	h := WithCache(cache, time.Hour)(upstream)

	req := &ChatRequest{Model: "gpt-4o-mini", Messages: []Message{{Role: RoleUser, Content: "ping"}}}
	first, err := h(context.Background(), req)
	require.NoError(t, err)
	second, err := h(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Text(), second.Text())
	assert.Len(t, cache.entries, 1)
	for key, ttl := range cache.ttls {
		assert.Equal(t, time.Hour, ttl, key)
	}
}

func TestWithCacheMissesOnDifferentPrompt(t *testing.T) {
	t.Parallel()

	calls := 0
	upstream := func(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
		calls++
		return &ChatResponse{Message: Message{Content: req.Messages[0].Content}}, nil
	}
	h := WithCache(newMemCache(), 0)(upstream)

	_, err := h(context.Background(), &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "a"}}})
	require.NoError(t, err)
	_, err = h(context.Background(), &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "b"}}})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestWithCacheDegradesOnCacheFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	upstream := func(_ context.Context, _ *ChatRequest) (*ChatResponse, error) {
		calls++
		return &ChatResponse{Message: Message{Content: "live"}}, nil
	}
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	h := WithCache(cache, time.Minute)(upstream)

	req := &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "q"}}}
	resp, err := h(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "live", resp.Text())

	_, err = h(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithCacheSkipsFailedResponses(t *testing.T) {
	t.Parallel()

	upstream := func(_ context.Context, _ *ChatRequest) (*ChatResponse, error) {
		return nil, &Error{Code: ErrUpstreamError, Message: "boom", Retryable: true}
	}
	cache := newMemCache()
	h := WithCache(cache, time.Minute)(upstream)

	_, err := h(context.Background(), &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "q"}}})
	require.Error(t, err)
	assert.Empty(t, cache.entries)
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	base := &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "q"}}, MaxTokens: 64}

	same := &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "q"}}, MaxTokens: 64, Timeout: 5 * time.Second}
	assert.Equal(t, CacheKey(base), CacheKey(same), "timeout must not split the cache")

	hotter := &ChatRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "q"}}, MaxTokens: 64, Temperature: 0.9}
	assert.NotEqual(t, CacheKey(base), CacheKey(hotter))

	otherModel := &ChatRequest{Model: "m2", Messages: []Message{{Role: RoleUser, Content: "q"}}, MaxTokens: 64}
	assert.NotEqual(t, CacheKey(base), CacheKey(otherModel))

	assert.True(t, strings.HasPrefix(CacheKey(base), "cascade:llm:"))
}

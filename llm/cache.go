// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	json "github.com/goccy/go-json"
)

// Cache stores serialized completion responses keyed by request hash.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// CacheKey derives a stable key from the fields that determine a
// completion. Transport settings such as the per-request timeout are
// excluded so they do not split the cache.
func CacheKey(req *ChatRequest) string {
	payload, err := json.Marshal(struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		MaxTokens   int       `json:"max_tokens"`
		Temperature float32   `json:"temperature"`
		Stop        []string  `json:"stop,omitempty"`
	}{req.Model, req.Messages, req.MaxTokens, req.Temperature, req.Stop})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return "cascade:llm:" + hex.EncodeToString(sum[:])
}

// WithCache serves completions from the cache when an identical request
// was answered before, and stores fresh responses after upstream calls.
// Cache failures degrade to a plain upstream call. Place it before the
// rate limit middleware so hits are not throttled, and before usage
// capture so hits do not count as spend.
func WithCache(cache Cache, ttl time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			key := CacheKey(req)
			if key == "" {
				return next(ctx, req)
			}
			if payload, ok, err := cache.Get(ctx, key); err == nil && ok {
				var resp ChatResponse
				if err := json.Unmarshal(payload, &resp); err == nil {
					return &resp, nil
				}
			}
			resp, err := next(ctx, req)
			if err != nil {
				return nil, err
			}
			if payload, merr := json.Marshal(resp); merr == nil {
				_ = cache.Set(ctx, key, payload, ttl)
			}
			return resp, nil
		}
	}
}

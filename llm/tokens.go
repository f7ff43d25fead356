// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelEncodings maps model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4.1":       "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// Per-message formatting overhead and the conversation tail, in tokens.
const (
	messageOverhead = 4
	replyPrimer     = 3
)

// Estimator counts tokens for responses whose provider omitted usage.
// Encodings are initialized lazily, since tiktoken may fetch encoding
// data on first use; when that fails the estimator degrades to a
// characters-per-token heuristic instead of erroring.
type Estimator struct {
	mu   sync.Mutex
	encs map[string]*tiktoken.Tiktoken
}

// NewEstimator creates an empty estimator.
func NewEstimator() *Estimator {
	return &Estimator{encs: make(map[string]*tiktoken.Tiktoken)}
}

func encodingFor(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(model, prefix) {
			return enc
		}
	}
	return defaultEncoding
}

func (e *Estimator) encoder(model string) *tiktoken.Tiktoken {
	name := encodingFor(model)
	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok := e.encs[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		e.encs[name] = nil
		return nil
	}
	e.encs[name] = enc
	return enc
}

// CountText estimates the tokens in a text fragment.
func (e *Estimator) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := e.encoder(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return approxTokens(text)
}

// CountMessages estimates the prompt tokens for a message list, including
// per-message formatting overhead.
func (e *Estimator) CountMessages(model string, messages []Message) int {
	total := 0
	for _, m := range messages {
		total += messageOverhead
		total += e.CountText(model, m.Content)
		total += e.CountText(model, string(m.Role))
	}
	if total > 0 {
		total += replyPrimer
	}
	return total
}

// approxTokens is the offline fallback: roughly four characters per token
// for prose.
func approxTokens(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// Each test registers under a fresh namespace so promauto's default
// registry never sees a duplicate.
var namespaceSeq uint64

func nextTestNamespace() string {
	return fmt.Sprintf("cascadetest%d", atomic.AddUint64(&namespaceSeq, 1))
}

func TestNewCollector(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, c.runsTotal)
	assert.NotNil(t, c.runDuration)
	assert.NotNil(t, c.nodesTotal)
	assert.NotNil(t, c.nodeDuration)
	assert.NotNil(t, c.retriesTotal)
	assert.NotNil(t, c.warningsTotal)
	assert.NotNil(t, c.llmCalls)
	assert.NotNil(t, c.llmTokens)
	assert.NotNil(t, c.llmCost)
}

func TestCollectorNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		c := NewCollector(nextTestNamespace(), nil)
		c.RecordWarning("unresolved_template")
	})
}

func TestRecordRun(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordRun("summarize-file", "SUCCESS", 2*time.Second)
	c.RecordRun("summarize-file", "FAILED", time.Second)

	assert.InDelta(t, 1, testutil.ToFloat64(c.runsTotal.WithLabelValues("summarize-file", "SUCCESS")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.runsTotal.WithLabelValues("summarize-file", "FAILED")), 1e-9)
	assert.Greater(t, testutil.CollectAndCount(c.runDuration), 0)
}

func TestRecordDispatchOutcomes(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordDispatch("read_file", OutcomeSuccess, 10*time.Millisecond)
	c.RecordDispatch("read_file", OutcomeSuccess, 15*time.Millisecond)
	c.RecordDispatch("llm_generate", OutcomeError, 500*time.Millisecond)
	c.RecordDispatch("llm_generate", OutcomeSkipped, 0)

	assert.InDelta(t, 2, testutil.ToFloat64(c.nodesTotal.WithLabelValues("read_file", OutcomeSuccess)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.nodesTotal.WithLabelValues("llm_generate", OutcomeError)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.nodesTotal.WithLabelValues("llm_generate", OutcomeSkipped)), 1e-9)
}

func TestRecordRetryAndWarning(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordRetry("http_request")
	c.RecordRetry("http_request")
	c.RecordWarning("unresolved_template")

	assert.InDelta(t, 2, testutil.ToFloat64(c.retriesTotal.WithLabelValues("http_request")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.warningsTotal.WithLabelValues("unresolved_template")), 1e-9)
}

func TestRecordLLMCall(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordLLMCall("gpt-4o-mini", 100, 50, 0.0005)
	c.RecordLLMCall("gpt-4o-mini", 200, 80, 0.0008)

	assert.InDelta(t, 2, testutil.ToFloat64(c.llmCalls.WithLabelValues("gpt-4o-mini")), 1e-9)
	assert.InDelta(t, 300, testutil.ToFloat64(c.llmTokens.WithLabelValues("gpt-4o-mini", "prompt")), 1e-9)
	assert.InDelta(t, 130, testutil.ToFloat64(c.llmTokens.WithLabelValues("gpt-4o-mini", "completion")), 1e-9)
	assert.InDelta(t, 0.0013, testutil.ToFloat64(c.llmCost.WithLabelValues("gpt-4o-mini")), 1e-9)
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordDispatch("read_file", OutcomeSuccess, time.Millisecond)
			c.RecordLLMCall("gpt-4o", 10, 5, 0.001)
			c.RecordWarning("batch_truncated")
		}()
	}
	wg.Wait()

	assert.InDelta(t, 10, testutil.ToFloat64(c.nodesTotal.WithLabelValues("read_file", OutcomeSuccess)), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(c.llmCalls.WithLabelValues("gpt-4o")), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(c.warningsTotal.WithLabelValues("batch_truncated")), 1e-9)
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package usage accumulates LLM call records for workflow runs.

Model calls happen through a process-wide shared client, so attribution
works in two layers. A Collector travels in the context of every dispatch
and receives records directly. The package-global interceptor backs it up:
runs install themselves under their run ID, and a capture that arrives with
a run-tagged context but no collector still lands in the right run. The
interceptor is reference counted so concurrent runs can share the hook;
it goes inactive only when the last run uninstalls.
*/
package usage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cascadeflow/cascade/internal/ctxkeys"
	"github.com/cascadeflow/cascade/types"
)

// Collector gathers call records for one run in call order. Records are
// append-only: a node that calls the model three times contributes three
// records, and instrumentation later attributes each slice of records to
// the dispatch that produced it.
type Collector struct {
	mu      sync.Mutex
	records []types.LLMCallRecord
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends one call record, assigning an ID when the caller left it
// empty.
func (c *Collector) Record(rec types.LLMCallRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

// Len returns the number of records so far. Instrumentation marks this
// before a dispatch to know which records the dispatch produced.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// AttributeSince stamps nodeID on every record appended after mark and
// returns copies of them. Records that already carry a node ID keep it.
func (c *Collector) AttributeSince(mark int, nodeID string) []types.LLMCallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mark < 0 || mark > len(c.records) {
		mark = len(c.records)
	}
	out := make([]types.LLMCallRecord, 0, len(c.records)-mark)
	for i := mark; i < len(c.records); i++ {
		if c.records[i].NodeID == "" {
			c.records[i].NodeID = nodeID
		}
		out = append(out, c.records[i])
	}
	return out
}

// Records returns a copy of all records in call order.
func (c *Collector) Records() []types.LLMCallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.LLMCallRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Totals aggregates the collected records.
func (c *Collector) Totals() types.UsageTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	var t types.UsageTotals
	for _, rec := range c.records {
		t.Add(rec)
	}
	return t
}

type collectorKey struct{}

// WithCollector attaches a collector to the context. Every dispatch runs
// under a context carrying its run's collector.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// FromContext returns the context's collector, if any.
func FromContext(ctx context.Context) (*Collector, bool) {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	return c, ok && c != nil
}

// interceptor is the shared hook state. One per process.
type interceptor struct {
	mu    sync.Mutex
	refs  int
	byRun map[string]*Collector
}

var global = interceptor{byRun: map[string]*Collector{}}

// Install registers a run's collector with the global interceptor and
// takes a reference on the hook.
func Install(runID string, c *Collector) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.refs++
	global.byRun[runID] = c
}

// Uninstall releases a run's registration. The hook stays active while
// other runs still hold references.
func Uninstall(runID string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.byRun, runID)
	if global.refs > 0 {
		global.refs--
	}
}

// Active reports whether any run currently holds the hook.
func Active() bool {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.refs > 0
}

// Capture routes a call record to its run. Preference order: the context's
// collector, then the interceptor registration for the context's run ID.
// Captures arriving while no run holds the hook are dropped; Capture
// reports whether the record landed.
func Capture(ctx context.Context, rec types.LLMCallRecord) bool {
	if c, ok := FromContext(ctx); ok {
		c.Record(rec)
		return true
	}
	runID, ok := ctxkeys.RunID(ctx)
	if !ok {
		return false
	}
	global.mu.Lock()
	c, found := global.byRun[runID]
	global.mu.Unlock()
	if !found {
		return false
	}
	c.Record(rec)
	return true
}

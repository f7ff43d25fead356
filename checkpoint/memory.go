// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package checkpoint

import (
	"context"
	"sync"
)

// Memory is the in-process checkpoint store. It is the default backend and
// the right one for tests and single-process runs.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]map[string]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{runs: map[string]map[string]Record{}}
}

// Load returns the record for a node under a resume key.
func (m *Memory) Load(_ context.Context, key, nodeID string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes, ok := m.runs[key]
	if !ok {
		return Record{}, false, nil
	}
	rec, ok := nodes[nodeID]
	return rec, ok, nil
}

// Save stores or replaces a node's record.
func (m *Memory) Save(_ context.Context, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes, ok := m.runs[key]
	if !ok {
		nodes = map[string]Record{}
		m.runs[key] = nodes
	}
	nodes[rec.NodeID] = rec
	return nil
}

// Clear removes every record under a resume key.
func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, key)
	return nil
}

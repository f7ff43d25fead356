// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package store implements the shared key-value store a workflow run executes
against, and the per-node views that keep node writes inside their own
namespace.

The store is flat at the top level: workflow inputs live at root keys, and
each executed node owns exactly one root key (its node ID) holding a map of
everything it wrote. A node sees the rest of the store only through template
resolution, never through its own view.
*/
package store

import (
	"sort"
	"sync"

	"github.com/cascadeflow/cascade/types"
)

// Shared is the run-scoped store. All access is goroutine-safe; batch nodes
// and the usage interceptor touch it from worker goroutines while the engine
// loop owns dispatch.
type Shared struct {
	mu   sync.RWMutex
	data map[string]types.Value
}

// New creates an empty store.
func New() *Shared {
	return &Shared{data: map[string]types.Value{}}
}

// NewFrom creates a store seeded with the given root entries. Values are
// deep-copied so the caller's map stays independent.
func NewFrom(seed map[string]types.Value) *Shared {
	s := New()
	for k, v := range seed {
		s.data[k] = v.Clone()
	}
	return s
}

// Get reads a root key.
func (s *Shared) Get(key string) (types.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set writes a root key.
func (s *Shared) Set(key string, v types.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
}

// Delete removes a root key.
func (s *Shared) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Keys returns the root keys in sorted order.
func (s *Shared) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of root keys.
func (s *Shared) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// SetIn writes key into the ns namespace, creating the namespace map on
// first write. If the root key exists but is not a map it is replaced: a
// node's namespace is always a map.
func (s *Shared) SetIn(ns, key string, v types.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.data[ns]
	fields, isMap := existing.AsMap()
	if !ok || !isMap {
		fields = map[string]types.Value{}
		s.data[ns] = types.NewMap(fields)
	}
	fields[key] = v
}

// GetIn reads key from the ns namespace.
func (s *Shared) GetIn(ns, key string) (types.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.data[ns]
	if !ok {
		return types.Null, false
	}
	return existing.Field(key)
}

// Namespace returns the whole namespace map for a node ID, or false when
// the node has not written anything.
func (s *Shared) Namespace(ns string) (types.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[ns]
	if !ok || v.Kind() != types.KindMap {
		return types.Null, false
	}
	return v, true
}

// NamespaceKeys returns the sorted keys inside a namespace. Used for repair
// hints when a template path misses.
func (s *Shared) NamespaceKeys(ns string) []string {
	v, ok := s.Namespace(ns)
	if !ok {
		return nil
	}
	fields, _ := v.AsMap()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the whole store, used for trace diffs and
// for surfacing the final store state in the run result.
func (s *Shared) Snapshot() map[string]types.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.Value, len(s.data))
	for k, v := range s.data {
		out[k] = v.Clone()
	}
	return out
}

// Diff compares two snapshots at root-key granularity. Added and changed
// keys map to their new value; removed keys map to Null. Namespaced node
// writes therefore show up as a single entry under the node's ID.
func Diff(before, after map[string]types.Value) map[string]types.Value {
	out := map[string]types.Value{}
	for k, v := range after {
		old, ok := before[k]
		if !ok || !old.Equal(v) {
			out[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			out[k] = types.Null
		}
	}
	return out
}

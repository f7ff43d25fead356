// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package registry maps node type names to the factories that build their
cores, plus the static input and output shapes the compiler checks
template references against.

Static entries are registered up front and never replaced: a second
registration of the same type name is an error, so two packages cannot
silently fight over a type. Dynamic resolvers extend the namespace at
compile time for type families that cannot be enumerated up front, such
as tools discovered from an MCP server.
*/
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/types"
)

// Spec is the compiled description of one node instance: its ID, type
// name, and raw parameters with template text intact. Factories receive
// the spec and may capture static parameters, but resolution happens
// later in the wrapper chain.
type Spec struct {
	ID     string
	Type   string
	Params map[string]types.Value
}

// Factory builds a core for one node instance.
type Factory func(spec Spec, env Env) (node.Core, error)

// Entry describes a registered node type.
type Entry struct {
	Type        string
	Description string
	Factory     Factory

	// Inputs and Outputs are the statically known parameter and output
	// shapes. The compiler checks template references against Outputs.
	Inputs  Shape
	Outputs Shape

	// Open marks types whose output keys are not statically known, such
	// as subflows and dynamic tools. References into an open output are
	// never flagged by the static check.
	Open bool
}

// DynamicResolver resolves node types that are not statically registered.
// Resolvers may perform I/O, such as listing tools from an MCP server,
// so resolution takes a context.
type DynamicResolver interface {
	// ResolveType returns the entry for typ. ok is false when the
	// resolver does not recognize the name; err reports a failure while
	// resolving a name the resolver does own.
	ResolveType(ctx context.Context, typ string) (Entry, bool, error)
}

// Registry is a thread-safe mapping from type names to entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	dynamic []DynamicResolver
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a static entry. Registering an empty type name, a nil
// factory, or a type that already exists is an error.
func (r *Registry) Register(e Entry) error {
	if e.Type == "" {
		return fmt.Errorf("registry: entry has empty type name")
	}
	if e.Factory == nil {
		return fmt.Errorf("registry: type %q has nil factory", e.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.Type]; exists {
		return fmt.Errorf("registry: type %q already registered", e.Type)
	}
	r.entries[e.Type] = e
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// AddDynamic appends a resolver consulted, in order, for type names no
// static entry covers.
func (r *Registry) AddDynamic(d DynamicResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamic = append(r.dynamic, d)
}

// Lookup returns the static entry for typ.
func (r *Registry) Lookup(typ string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typ]
	return e, ok
}

// Resolve returns the entry for typ, consulting static entries first and
// then each dynamic resolver in registration order.
func (r *Registry) Resolve(ctx context.Context, typ string) (Entry, error) {
	if e, ok := r.Lookup(typ); ok {
		return e, nil
	}
	r.mu.RLock()
	dynamic := make([]DynamicResolver, len(r.dynamic))
	copy(dynamic, r.dynamic)
	r.mu.RUnlock()
	for _, d := range dynamic {
		e, ok, err := d.ResolveType(ctx, typ)
		if err != nil {
			return Entry{}, fmt.Errorf("registry: resolving type %q: %w", typ, err)
		}
		if ok {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("registry: unknown node type %q", typ)
}

// Types returns the sorted names of all static entries.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of static entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

// Package cascade provides a convenience entry point for embedding the
// workflow runtime with minimal boilerplate.
//
// Usage:
//
//	import "github.com/cascadeflow/cascade"
//
//	rt, err := cascade.New(cascade.WithOpenAI("gpt-4o-mini"))
//	res, err := rt.RunFile(ctx, "flow.yaml", nil)
//
// The runtime carries the builtin node types; custom types register via
// [WithNodeType] and MCP tool servers via [WithToolServers]. Callers who
// need the full wiring surface (metrics, history, checkpoints backends)
// use the engine package directly.
package cascade

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/builtin"
	"github.com/cascadeflow/cascade/checkpoint"
	"github.com/cascadeflow/cascade/engine"
	"github.com/cascadeflow/cascade/ir"
	"github.com/cascadeflow/cascade/llm"
	"github.com/cascadeflow/cascade/registry"
	"github.com/cascadeflow/cascade/template"
	"github.com/cascadeflow/cascade/toolnode"
	"github.com/cascadeflow/cascade/types"
)

// Result is what a finished run reports.
type Result = engine.Result

// Workflow is a parsed workflow definition.
type Workflow = ir.Workflow

// Value is the runtime's store value.
type Value = types.Value

// Option configures the runtime created by [New].
type Option func(*options)

type options struct {
	logger      *zap.Logger
	provider    llm.Provider
	apiKey      string
	model       string
	mode        string
	plainStore  bool
	batchLimit  int
	maxHops     int
	skipScan    []string
	baseDir     string
	allowlist   []string
	checkpoints checkpoint.Store
	traceDir    string
	servers     []toolnode.ServerConfig
	entries     []registry.Entry
	respCache   llm.Cache
	cacheTTL    time.Duration

	// Provider shortcut fields, used when provider is nil.
	providerBase string
	useOpenAI    bool
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI configures the OpenAI provider with the given model.
// API key is read from OPENAI_API_KEY unless [WithAPIKey] overrides it.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.useOpenAI = true
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAPIKey overrides the API key for provider shortcuts.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the OpenAI-compatible provider at another endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.providerBase = url }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMode sets the template resolution mode, "strict" or "permissive".
func WithMode(mode string) Option {
	return func(o *options) { o.mode = mode }
}

// WithPlainStore disables per-node namespacing, letting nodes write
// arbitrary root keys. The static template check is off in this mode.
func WithPlainStore() Option {
	return func(o *options) { o.plainStore = true }
}

// WithBatchLimit caps the items batch nodes process. Zero is unlimited.
func WithBatchLimit(n int) Option {
	return func(o *options) { o.batchLimit = n }
}

// WithMaxHops bounds edge traversals per run.
func WithMaxHops(n int) Option {
	return func(o *options) { o.maxHops = n }
}

// WithBaseDir anchors relative paths in file nodes and subflow loading.
func WithBaseDir(dir string) Option {
	return func(o *options) { o.baseDir = dir }
}

// WithShellAllowlist names the commands shell nodes may run.
func WithShellAllowlist(commands ...string) Option {
	return func(o *options) { o.allowlist = append(o.allowlist, commands...) }
}

// WithCheckpoints enables resume through the given store.
func WithCheckpoints(store checkpoint.Store) Option {
	return func(o *options) { o.checkpoints = store }
}

// WithTraceDir writes one trace artifact per run into dir.
func WithTraceDir(dir string) Option {
	return func(o *options) { o.traceDir = dir }
}

// WithSkipOutputScan exempts node IDs or type names from the
// unresolved-template output scan.
func WithSkipOutputScan(names ...string) Option {
	return func(o *options) { o.skipScan = append(o.skipScan, names...) }
}

// WithToolServers makes MCP tool servers available as mcp:<server>:<tool>
// node types.
func WithToolServers(servers ...toolnode.ServerConfig) Option {
	return func(o *options) { o.servers = append(o.servers, servers...) }
}

// WithNodeType registers a custom node type alongside the builtins.
func WithNodeType(entry registry.Entry) Option {
	return func(o *options) { o.entries = append(o.entries, entry) }
}

// WithResponseCache serves repeated completions from cache instead of
// calling the provider again.
func WithResponseCache(c llm.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.respCache = c
		o.cacheTTL = ttl
	}
}

// Runtime bundles an engine with the resources it owns.
type Runtime struct {
	engine   *engine.Engine
	registry *registry.Registry
	resolver *toolnode.Resolver
}

// New assembles a runtime with the builtin node types. A provider is
// optional; workflows without llm nodes run fine without one.
func New(opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	mode, err := template.ParseMode(o.mode)
	if err != nil {
		return nil, err
	}

	provider := o.provider
	if provider == nil && o.useOpenAI {
		if o.apiKey == "" {
			return nil, fmt.Errorf("API key is required for openai: set OPENAI_API_KEY or use WithAPIKey")
		}
		provider = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  o.apiKey,
			BaseURL: o.providerBase,
			Model:   o.model,
		})
		mws := []llm.Middleware{llm.WithLogging(o.logger)}
		if o.respCache != nil {
			mws = append(mws, llm.WithCache(o.respCache, o.cacheTTL))
		}
		mws = append(mws, llm.WithUsageCapture(llm.NewEstimator(), llm.DefaultPricing(), false))
		provider = llm.Apply(provider, mws...)
	} else if provider != nil && o.respCache != nil {
		provider = llm.Apply(provider, llm.WithCache(o.respCache, o.cacheTTL))
	}

	reg := registry.New()
	if err := builtin.RegisterAll(reg); err != nil {
		return nil, err
	}
	for _, entry := range o.entries {
		if err := reg.Register(entry); err != nil {
			return nil, err
		}
	}

	var resolver *toolnode.Resolver
	if len(o.servers) > 0 {
		resolver = toolnode.NewResolver(o.servers, toolnode.Options{Logger: o.logger})
		reg.AddDynamic(resolver)
	}

	eng := engine.New(reg, engine.Options{
		Mode:           mode,
		Namespacing:    !o.plainStore,
		BatchLimit:     o.batchLimit,
		MaxHops:        o.maxHops,
		SkipOutputScan: o.skipScan,
		Checkpoints:    o.checkpoints,
		TraceDir:       o.traceDir,
		Env: registry.Env{
			Logger:         o.logger,
			LLM:            provider,
			BaseDir:        o.baseDir,
			ShellAllowlist: o.allowlist,
		},
		Logger: o.logger,
	})

	return &Runtime{engine: eng, registry: reg, resolver: resolver}, nil
}

// Run executes a workflow.
func (r *Runtime) Run(ctx context.Context, wf *Workflow, inputs map[string]Value) (*Result, error) {
	return r.engine.Run(ctx, wf, inputs)
}

// RunFile loads a workflow file and executes it.
func (r *Runtime) RunFile(ctx context.Context, path string, inputs map[string]Value) (*Result, error) {
	wf, err := ir.Load(path)
	if err != nil {
		return nil, err
	}
	return r.engine.Run(ctx, wf, inputs)
}

// Engine exposes the underlying engine for callers that need Compile or
// a Runner.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// Registry exposes the node type registry, for registering more types
// after construction.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}

// Close releases tool server sessions. Safe to call on a runtime without
// tool servers.
func (r *Runtime) Close() error {
	if r.resolver == nil {
		return nil
	}
	return r.resolver.Close()
}

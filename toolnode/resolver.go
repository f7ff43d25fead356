// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package toolnode

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/registry"
)

// Prefix marks MCP-backed node types: "mcp:<server>:<tool>".
const Prefix = "mcp:"

// ServerConfig names one MCP server and the command that starts it.
type ServerConfig struct {
	// Name is the alias used in type markers.
	Name string `json:"name" yaml:"name"`

	// Command and Args spawn the server process speaking MCP on stdio.
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env entries are appended to the child process environment.
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`
}

// DialFunc opens a client session to a server. The default spawns the
// configured command over a stdio transport; tests inject in-memory
// sessions.
type DialFunc func(ctx context.Context, cfg ServerConfig) (*mcp.ClientSession, error)

// Options tune the resolver.
type Options struct {
	// Dial overrides how server sessions are opened.
	Dial DialFunc

	Logger *zap.Logger
}

// Resolver resolves "mcp:" type markers against configured servers. One
// session per server is opened lazily and reused; the discovered tool
// list is cached for the resolver's lifetime.
type Resolver struct {
	dial   DialFunc
	logger *zap.Logger

	mu      sync.Mutex
	servers map[string]*serverHandle
}

type serverHandle struct {
	config  ServerConfig
	session *mcp.ClientSession
	tools   map[string]*mcp.Tool
}

// NewResolver builds a resolver over the given server configs.
func NewResolver(servers []ServerConfig, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dial := opts.Dial
	if dial == nil {
		dial = commandDial
	}
	r := &Resolver{
		dial:    dial,
		logger:  logger.With(zap.String("component", "toolnode")),
		servers: make(map[string]*serverHandle, len(servers)),
	}
	for _, cfg := range servers {
		r.servers[cfg.Name] = &serverHandle{config: cfg}
	}
	return r
}

// commandDial spawns the configured server command and connects over its
// stdio pipes.
func commandDial(ctx context.Context, cfg ServerConfig) (*mcp.ClientSession, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.Env...)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "cascade", Version: "dev"}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server %q: %w", cfg.Name, err)
	}
	return session, nil
}

// ResolveType implements registry.DynamicResolver. Markers without the
// "mcp:" prefix are declined; malformed or unknown markers under the
// prefix are errors, since no other resolver owns them.
func (r *Resolver) ResolveType(ctx context.Context, typ string) (registry.Entry, bool, error) {
	if !strings.HasPrefix(typ, Prefix) {
		return registry.Entry{}, false, nil
	}
	rest := strings.TrimPrefix(typ, Prefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return registry.Entry{}, false, fmt.Errorf("malformed MCP type marker %q, want mcp:<server>:<tool>", typ)
	}
	server, toolName := parts[0], parts[1]

	handle, tool, err := r.discover(ctx, server, toolName)
	if err != nil {
		return registry.Entry{}, false, err
	}
	return r.entry(typ, handle, tool), true, nil
}

// discover returns the named tool, connecting and listing on first use.
func (r *Resolver) discover(ctx context.Context, server, toolName string) (*serverHandle, *mcp.Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.servers[server]
	if !ok {
		return nil, nil, fmt.Errorf("unknown MCP server %q (configured: %s)", server, strings.Join(r.serverNames(), ", "))
	}
	if handle.session == nil {
		session, err := r.dial(ctx, handle.config)
		if err != nil {
			return nil, nil, err
		}
		listed, err := session.ListTools(ctx, nil)
		if err != nil {
			session.Close()
			return nil, nil, fmt.Errorf("listing tools on MCP server %q: %w", server, err)
		}
		tools := make(map[string]*mcp.Tool, len(listed.Tools))
		for _, t := range listed.Tools {
			tools[t.Name] = t
		}
		handle.session = session
		handle.tools = tools
		r.logger.Info("mcp server connected",
			zap.String("server", server),
			zap.Int("tools", len(tools)))
	}

	tool, ok := handle.tools[toolName]
	if !ok {
		names := make([]string, 0, len(handle.tools))
		for name := range handle.tools {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, nil, fmt.Errorf("MCP server %q has no tool %q (available: %s)", server, toolName, strings.Join(names, ", "))
	}
	return handle, tool, nil
}

func (r *Resolver) serverNames() []string {
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down every open server session.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, handle := range r.servers {
		if handle.session == nil {
			continue
		}
		if err := handle.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing MCP server %q: %w", name, err)
		}
		handle.session = nil
		handle.tools = nil
	}
	return firstErr
}

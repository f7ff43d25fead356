// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package toolnode turns MCP tools into workflow node types.

A type marker "mcp:<server>:<tool>" names a tool on a configured MCP
server. The Resolver implements registry.DynamicResolver: it connects to
the server on first use, discovers the tool, and returns a registry entry
whose core forwards resolved node parameters as tool arguments and folds
the tool result into the node namespace.

External tools may legitimately return text containing template-looking
syntax; runs that hit this can exempt the node from output scanning
through the engine's SkipOutputScan option, keyed by node ID or by the
full type marker.
*/
package toolnode

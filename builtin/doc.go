// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package builtin provides the node types shipped with the runtime: file
read/write, HTTP requests, allowlisted shell commands, LLM generation,
batch variants of file read and LLM generation, and a subflow node that
runs a child workflow.

Every adapter is a plain node.Core behind a registry.Factory. Cores
receive resolved parameters and their own store view; shared services
(LLM provider, HTTP client, shell allowlist, subflow runner) arrive
through registry.Env at factory time. A factory that is missing a
service it cannot run without reports the problem at compile time rather
than at dispatch.

Batch nodes apply the run's batch limit independently: a zero limit
processes everything, a positive limit keeps the first N items and
records a warning whenever that actually removed items.
*/
package builtin

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

// Package cache is a redis-backed byte cache. The runtime wires it into
// the model client as a completion response cache, so identical prompts
// across runs are answered without an upstream call.
package cache

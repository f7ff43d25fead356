// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

// Package metrics records Prometheus metrics for workflow runs, node
// dispatches, and LLM usage. Collectors register through promauto under
// a caller-chosen namespace; the cmd layer exposes them over /metrics
// when the endpoint is enabled.
package metrics

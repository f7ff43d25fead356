// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

// Package server manages an http.Server lifecycle: non-blocking start,
// graceful shutdown, and asynchronous error reporting. The runtime uses
// it for the Prometheus metrics endpoint.
package server

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

// Package config loads runtime configuration from defaults, an optional
// YAML file, and CASCADE_-prefixed environment variables, in that order
// of increasing precedence.
package config

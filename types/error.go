// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package types

import (
	"errors"
	"fmt"
)

// ErrorCategory partitions run failures for the repair loop. Categories are
// stable wire strings: they appear in trace artifacts and RepairContexts.
type ErrorCategory string

const (
	CategoryCompile          ErrorCategory = "compile_error"
	CategoryParam            ErrorCategory = "param_error"
	CategoryValidation       ErrorCategory = "validation_error"
	CategoryResourceNotFound ErrorCategory = "resource_not_found"
	CategoryTemplate         ErrorCategory = "template_error"
	CategoryExecution        ErrorCategory = "execution_error"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryCancelled        ErrorCategory = "cancelled"
)

// RepairableDefault returns the default repairability for a category.
// Resource-not-found is terminal: replanning the same fetch cannot conjure
// the missing resource. Cancellation is an operator decision, not a defect.
func RepairableDefault(cat ErrorCategory) bool {
	switch cat {
	case CategoryResourceNotFound, CategoryCancelled:
		return false
	default:
		return true
	}
}

// RunError is a structured workflow error. Every error that escapes a node
// or the compiler is normalized into one of these before it reaches the
// engine loop, the trace, or a RepairContext.
type RunError struct {
	Category   ErrorCategory    `json:"category"`
	NodeID     string           `json:"node_id,omitempty"`
	Message    string           `json:"message"`
	Repairable bool             `json:"repairable"`
	Attempt    int              `json:"attempt,omitempty"`
	Details    map[string]Value `json:"details,omitempty"`
	Cause      error            `json:"-"`
}

// NewRunError creates a RunError with the category's default repairability.
func NewRunError(cat ErrorCategory, message string) *RunError {
	return &RunError{Category: cat, Message: message, Repairable: RepairableDefault(cat)}
}

// Errorf creates a RunError with a formatted message.
func Errorf(cat ErrorCategory, format string, args ...any) *RunError {
	return NewRunError(cat, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Category, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Cause
}

// WithNode attributes the error to a node.
func (e *RunError) WithNode(nodeID string) *RunError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches the underlying error.
func (e *RunError) WithCause(cause error) *RunError {
	e.Cause = cause
	return e
}

// WithRepairable overrides the category default.
func (e *RunError) WithRepairable(repairable bool) *RunError {
	e.Repairable = repairable
	return e
}

// WithAttempt records which dispatch attempt raised the error.
func (e *RunError) WithAttempt(attempt int) *RunError {
	e.Attempt = attempt
	return e
}

// WithDetail attaches a structured detail for repair hints, such as the
// attempted template path or the fields that were actually available.
func (e *RunError) WithDetail(key string, v Value) *RunError {
	if e.Details == nil {
		e.Details = map[string]Value{}
	}
	e.Details[key] = v
	return e
}

// AsRunError extracts a RunError from an error chain.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRepairable reports whether the error is eligible for the external
// repair loop. Errors that are not RunErrors default to repairable, so an
// unclassified failure never silently becomes terminal.
func IsRepairable(err error) bool {
	if re, ok := AsRunError(err); ok {
		return re.Repairable
	}
	return err != nil
}

// CategoryOf returns the error's category, or CategoryExecution for plain
// errors.
func CategoryOf(err error) ErrorCategory {
	if re, ok := AsRunError(err); ok {
		return re.Category
	}
	return CategoryExecution
}

// RepairContext is the handoff from a failed run to the external repair
// loop. The runtime only produces these; consuming them, replanning, and
// bounding the retry budget belong to the loop.
type RepairContext struct {
	RunID           string           `json:"run_id"`
	NodeID          string           `json:"node_id"`
	NodeType        string           `json:"node_type,omitempty"`
	Category        ErrorCategory    `json:"category"`
	Message         string           `json:"message"`
	Repairable      bool             `json:"repairable"`
	Attempt         int              `json:"attempt"`
	MaxAttempts     int              `json:"max_attempts"`
	AttemptedPath   string           `json:"attempted_path,omitempty"`
	AvailableFields []string         `json:"available_fields,omitempty"`
	Params          map[string]Value `json:"params,omitempty"`
}

// WarningCode labels non-fatal conditions that degrade a run.
type WarningCode string

const (
	WarnBatchTruncated     WarningCode = "BATCH_TRUNCATED"
	WarnUnresolvedTemplate WarningCode = "UNRESOLVED_TEMPLATE"
	WarnUnresolvedOutput   WarningCode = "UNRESOLVED_OUTPUT"
	WarnStaticMismatch     WarningCode = "STATIC_MISMATCH"
	WarnSubflowFailed      WarningCode = "SUBFLOW_FAILED"
	WarnOutputMissing      WarningCode = "OUTPUT_MISSING"
)

// RunWarning is a non-fatal condition recorded against a run. Any warning
// downgrades a completed run from SUCCESS to DEGRADED.
type RunWarning struct {
	Code    WarningCode `json:"code"`
	NodeID  string      `json:"node_id,omitempty"`
	Message string      `json:"message"`
}

// Warningf builds a RunWarning with a formatted message.
func Warningf(code WarningCode, nodeID, format string, args ...any) RunWarning {
	return RunWarning{Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)}
}

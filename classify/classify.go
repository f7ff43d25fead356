// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package classify normalizes node failures into structured RunErrors and
decides repairability.

Two inputs arrive here: Go errors raised by node adapters, and "soft
errors" where a node completed normally but its output encodes a failure
(an API that returns 200 with an error payload). Classification is
priority ordered: an explicit machine-readable error code wins, then
parameter and validation vocabulary (repairable), then missing-resource
vocabulary (not repairable, the node is treated as permanently
completed). Unresolved template text is classified where it is detected
and always repairable.
*/
package classify

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/cascadeflow/cascade/types"
)

// Vocabulary fragments matched against lowercased messages. Order inside
// each list does not matter; list order encodes the classification
// priority.
var (
	paramVocab = []string{
		"invalid parameter",
		"invalid argument",
		"invalid input",
		"missing required",
		"missing parameter",
		"validation failed",
		"validation error",
		"bad request",
		"expected one of",
		"must be one of",
		"unknown field",
	}
	notFoundVocab = []string{
		"not found",
		"no such file",
		"no such key",
		"no such host",
		"does not exist",
		"unknown model",
		"404",
	}
)

// ErrorCodes mapped from explicit machine-readable codes found in soft
// error payloads.
var codeCategories = map[string]types.ErrorCategory{
	"param_error":        types.CategoryParam,
	"invalid_param":      types.CategoryParam,
	"invalid_params":     types.CategoryParam,
	"validation_error":   types.CategoryValidation,
	"validation_failed":  types.CategoryValidation,
	"bad_request":        types.CategoryValidation,
	"not_found":          types.CategoryResourceNotFound,
	"resource_not_found": types.CategoryResourceNotFound,
	"resource_missing":   types.CategoryResourceNotFound,
	"404":                types.CategoryResourceNotFound,
	"timeout":            types.CategoryTimeout,
	"deadline_exceeded":  types.CategoryTimeout,
	"cancelled":          types.CategoryCancelled,
	"template_error":     types.CategoryTemplate,
}

// Error normalizes an error raised during node execution. Existing
// RunErrors pass through with node attribution filled in; everything else
// is classified by sentinel checks first and vocabulary second.
func Error(nodeID string, err error) *types.RunError {
	if err == nil {
		return nil
	}
	if re, ok := types.AsRunError(err); ok {
		if re.NodeID == "" {
			re.NodeID = nodeID
		}
		return re
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewRunError(types.CategoryTimeout, err.Error()).WithNode(nodeID).WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewRunError(types.CategoryCancelled, err.Error()).WithNode(nodeID).WithCause(err)
	case errors.Is(err, fs.ErrNotExist):
		return types.NewRunError(types.CategoryResourceNotFound, err.Error()).WithNode(nodeID).WithCause(err)
	}

	if cat, ok := matchVocab(err.Error()); ok {
		return types.NewRunError(cat, err.Error()).WithNode(nodeID).WithCause(err)
	}
	return types.NewRunError(types.CategoryExecution, err.Error()).WithNode(nodeID).WithCause(err)
}

// Output inspects a node's final namespaced output for a soft error. The
// markers are an "error_code" string, an "error" string or map, or a
// "status" field equal to "error". A nil return means the output carries
// no failure signal.
func Output(nodeID string, output types.Value) *types.RunError {
	fields, ok := output.AsMap()
	if !ok {
		return nil
	}

	message := softErrorMessage(fields)

	if codeVal, ok := fields["error_code"]; ok {
		if code, isStr := codeVal.AsString(); isStr && code != "" {
			if message == "" {
				message = "error code " + code
			}
			re := types.NewRunError(categoryForCode(code), message).WithNode(nodeID).
				WithDetail("error_code", types.NewString(code))
			return re
		}
	}

	if message == "" {
		return nil
	}
	cat, matched := matchVocab(message)
	if !matched {
		cat = types.CategoryExecution
	}
	return types.NewRunError(cat, message).WithNode(nodeID)
}

func softErrorMessage(fields map[string]types.Value) string {
	if v, ok := fields["error"]; ok {
		if s, isStr := v.AsString(); isStr && s != "" {
			return s
		}
		if inner, isMap := v.AsMap(); isMap {
			if msg, ok := inner["message"]; ok {
				if s, isStr := msg.AsString(); isStr {
					return s
				}
			}
			return v.Text()
		}
	}
	if v, ok := fields["status"]; ok {
		if s, _ := v.AsString(); strings.EqualFold(s, "error") {
			if msg, ok := fields["message"]; ok {
				if text, isStr := msg.AsString(); isStr {
					return text
				}
			}
			return "status=error"
		}
	}
	return ""
}

func categoryForCode(code string) types.ErrorCategory {
	if cat, ok := codeCategories[strings.ToLower(code)]; ok {
		return cat
	}
	// Unknown explicit codes stay repairable execution errors; the code is
	// preserved in the details for the repair loop.
	return types.CategoryExecution
}

// matchVocab applies the priority order: param and validation language
// first, then missing-resource language.
func matchVocab(message string) (types.ErrorCategory, bool) {
	lower := strings.ToLower(message)
	for _, frag := range paramVocab {
		if strings.Contains(lower, frag) {
			return types.CategoryValidation, true
		}
	}
	for _, frag := range notFoundVocab {
		if strings.Contains(lower, frag) {
			return types.CategoryResourceNotFound, true
		}
	}
	return "", false
}

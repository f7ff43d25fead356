// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package ir defines the workflow intermediate representation: the
declarative graph description the engine compiles and executes. A
workflow arrives as JSON or YAML, is validated against the schema rules
here, and is immutable once handed to the compiler.
*/
package ir

import (
	"github.com/cascadeflow/cascade/types"
)

// Version is the IR schema version this runtime reads.
const Version = 1

// DefaultAction is the edge action used when a node returns none and the
// action an IR edge gets when it declares none.
const DefaultAction = "default"

// Workflow is the root of the IR.
type Workflow struct {
	Version int    `json:"ir_version" yaml:"ir_version"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`

	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges,omitempty" yaml:"edges,omitempty"`

	// Inputs declares the values a caller may inject at the store root.
	Inputs map[string]Input `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Outputs declares the values surfaced from the final store into the
	// execution result. Under namespacing, an output's source template is
	// the only way a namespaced value reaches the result.
	Outputs map[string]Output `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// TemplateResolutionMode overrides the run's mode when set.
	TemplateResolutionMode string `json:"template_resolution_mode,omitempty" yaml:"template_resolution_mode,omitempty"`

	// BatchLimit overrides the run's batch limit when set. Zero means
	// unlimited.
	BatchLimit *int `json:"batch_limit,omitempty" yaml:"batch_limit,omitempty"`
}

// Node is one unit of work in the graph.
type Node struct {
	ID     string                 `json:"id" yaml:"id"`
	Type   string                 `json:"type" yaml:"type"`
	Params map[string]types.Value `json:"params,omitempty" yaml:"params,omitempty"`
	Retry  *Retry                 `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// Retry bounds automatic in-run redispatch of a failing node.
type Retry struct {
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	DelayMS     int `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
}

// Edge routes from one node to another when the dispatch returns the
// matching action.
type Edge struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
}

// Input declares a caller-injected root value.
type Input struct {
	Type     string      `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Default  types.Value `json:"default,omitempty" yaml:"default,omitempty"`
}

// Output declares a result value and the template that sources it.
type Output struct {
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
	Source string `json:"source" yaml:"source"`
}

// Entry returns the workflow's entry node: the first node in the list.
func (w *Workflow) Entry() (Node, bool) {
	if len(w.Nodes) == 0 {
		return Node{}, false
	}
	return w.Nodes[0], true
}

// NodeByID returns the node with the given ID.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs returns the node IDs in declaration order.
func (w *Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package ir

import (
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/cascadeflow/cascade/types"
)

// raw* mirror the wire schema with untyped parameter values. Both the
// JSON and the YAML decoder produce them; convert lifts the untyped
// values into types.Value so the rest of the runtime never touches
// interface{} data.

type rawWorkflow struct {
	Version                int                  `json:"ir_version" yaml:"ir_version"`
	Name                   string               `json:"name" yaml:"name"`
	Nodes                  []rawNode            `json:"nodes" yaml:"nodes"`
	Edges                  []Edge               `json:"edges" yaml:"edges"`
	Inputs                 map[string]rawInput  `json:"inputs" yaml:"inputs"`
	Outputs                map[string]rawOutput `json:"outputs" yaml:"outputs"`
	TemplateResolutionMode string               `json:"template_resolution_mode" yaml:"template_resolution_mode"`
	BatchLimit             *int                 `json:"batch_limit" yaml:"batch_limit"`
}

type rawNode struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params" yaml:"params"`
	Retry  *Retry         `json:"retry" yaml:"retry"`
}

type rawInput struct {
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
	Default  any    `json:"default" yaml:"default"`
}

type rawOutput struct {
	Type   string `json:"type" yaml:"type"`
	Source string `json:"source" yaml:"source"`
}

// ParseJSON decodes a JSON workflow. The result is validated.
func ParseJSON(data []byte) (*Workflow, error) {
	var raw rawWorkflow
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, types.Errorf(types.CategoryCompile, "decoding workflow JSON: %v", err).WithCause(err)
	}
	return convert(raw)
}

// ParseYAML decodes a YAML workflow. The result is validated.
func ParseYAML(data []byte) (*Workflow, error) {
	var raw rawWorkflow
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, types.Errorf(types.CategoryCompile, "decoding workflow YAML: %v", err).WithCause(err)
	}
	return convert(raw)
}

// Load reads a workflow file, choosing the decoder by extension. A
// workflow with no name takes the file's base name.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.Errorf(types.CategoryCompile, "reading workflow file: %v", err).WithCause(err)
	}
	var wf *Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		wf, err = ParseYAML(data)
	default:
		wf, err = ParseJSON(data)
	}
	if err != nil {
		return nil, err
	}
	if wf.Name == "" {
		base := filepath.Base(path)
		wf.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return wf, nil
}

func convert(raw rawWorkflow) (*Workflow, error) {
	wf := &Workflow{
		Version:                raw.Version,
		Name:                   raw.Name,
		Edges:                  raw.Edges,
		TemplateResolutionMode: raw.TemplateResolutionMode,
		BatchLimit:             raw.BatchLimit,
	}
	if wf.Version == 0 {
		wf.Version = Version
	}

	wf.Nodes = make([]Node, 0, len(raw.Nodes))
	for _, rn := range raw.Nodes {
		params, err := types.FromAnyMap(rn.Params)
		if err != nil {
			return nil, types.Errorf(types.CategoryCompile,
				"node %q: invalid params: %v", rn.ID, err).WithNode(rn.ID).WithCause(err)
		}
		wf.Nodes = append(wf.Nodes, Node{ID: rn.ID, Type: rn.Type, Params: params, Retry: rn.Retry})
	}

	if len(raw.Inputs) > 0 {
		wf.Inputs = make(map[string]Input, len(raw.Inputs))
		for name, ri := range raw.Inputs {
			def, err := types.FromAny(ri.Default)
			if err != nil {
				return nil, types.Errorf(types.CategoryCompile,
					"input %q: invalid default: %v", name, err).WithCause(err)
			}
			wf.Inputs[name] = Input{Type: ri.Type, Required: ri.Required, Default: def}
		}
	}

	if len(raw.Outputs) > 0 {
		wf.Outputs = make(map[string]Output, len(raw.Outputs))
		for name, ro := range raw.Outputs {
			wf.Outputs[name] = Output{Type: ro.Type, Source: ro.Source}
		}
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package ir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascade/types"
)

const sampleJSON = `{
  "ir_version": 1,
  "name": "summarize-file",
  "nodes": [
    {"id": "fetch", "type": "read_file", "params": {"path": "${source_path}"}},
    {"id": "summarize", "type": "llm", "params": {"prompt": "Summarize: ${fetch.content}", "max_tokens": 256},
     "retry": {"max_attempts": 3, "delay_ms": 100}},
    {"id": "save", "type": "write_file", "params": {"path": "out.txt", "content": "${summarize.text}"}}
  ],
  "edges": [
    {"from": "fetch", "to": "summarize", "action": "default"},
    {"from": "summarize", "to": "save", "action": "default"},
    {"from": "summarize", "to": "fetch", "action": "error"}
  ],
  "inputs": {"source_path": {"type": "string", "required": true}},
  "outputs": {"summary": {"type": "string", "source": "${summarize.text}"}},
  "template_resolution_mode": "strict",
  "batch_limit": 3
}`

const sampleYAML = `
ir_version: 1
name: summarize-file
nodes:
  - id: fetch
    type: read_file
    params:
      path: ${source_path}
  - id: save
    type: write_file
    params:
      path: out.txt
      content: hello
edges:
  - from: fetch
    to: save
inputs:
  source_path:
    type: string
    default: notes.md
outputs:
  saved:
    source: ${save.path}
`

func TestParseJSON(t *testing.T) {
	t.Parallel()

	wf, err := ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "summarize-file", wf.Name)
	require.Len(t, wf.Nodes, 3)

	entry, ok := wf.Entry()
	require.True(t, ok)
	assert.Equal(t, "fetch", entry.ID)

	n, ok := wf.NodeByID("summarize")
	require.True(t, ok)
	assert.Equal(t, "llm", n.Type)
	require.NotNil(t, n.Retry)
	assert.Equal(t, 3, n.Retry.MaxAttempts)

	maxTokens, ok := n.Params["max_tokens"]
	require.True(t, ok)
	assert.Equal(t, types.KindNumber, maxTokens.Kind())

	require.NotNil(t, wf.BatchLimit)
	assert.Equal(t, 3, *wf.BatchLimit)
	assert.Equal(t, []string{"fetch", "summarize", "save"}, wf.NodeIDs())
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	wf, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	require.Len(t, wf.Nodes, 2)
	path, ok := wf.Nodes[0].Params["path"]
	require.True(t, ok)
	assert.Equal(t, types.NewString("${source_path}"), path)

	in, ok := wf.Inputs["source_path"]
	require.True(t, ok)
	assert.Equal(t, types.NewString("notes.md"), in.Default)
	assert.Nil(t, wf.BatchLimit)
}

func TestLoadByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "flow.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSON), 0o644))
	wf, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "summarize-file", wf.Name)

	unnamed := `{"ir_version": 1, "nodes": [{"id": "only", "type": "read_file"}]}`
	yamlEquivalent := "ir_version: 1\nnodes:\n  - id: only\n    type: read_file\n"

	noNameJSON := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(noNameJSON, []byte(unnamed), 0o644))
	wf, err = Load(noNameJSON)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", wf.Name)

	yamlPath := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlEquivalent), 0o644))
	wf, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", wf.Name)

	_, err = Load(filepath.Join(dir, "absent.json"))
	require.Error(t, err)
	re, ok := types.AsRunError(err)
	require.True(t, ok)
	assert.Equal(t, types.CategoryCompile, re.Category)
}

func TestValidateRules(t *testing.T) {
	t.Parallel()

	base := func() *Workflow {
		return &Workflow{
			Version: Version,
			Nodes: []Node{
				{ID: "a", Type: "read_file"},
				{ID: "b", Type: "write_file"},
			},
			Edges: []Edge{{From: "a", To: "b"}},
		}
	}

	cases := []struct {
		name    string
		mutate  func(w *Workflow)
		wantMsg string
	}{
		{"unsupported version", func(w *Workflow) { w.Version = 99 }, "ir_version 99 not supported"},
		{"no nodes", func(w *Workflow) { w.Nodes = nil }, "no nodes"},
		{"empty id", func(w *Workflow) { w.Nodes[0].ID = "" }, "empty id"},
		{"bad id", func(w *Workflow) { w.Nodes[0].ID = "has space"; w.Edges[0].From = "has space" }, "not a valid identifier"},
		{"empty type", func(w *Workflow) { w.Nodes[1].Type = "" }, "empty type"},
		{"duplicate id", func(w *Workflow) { w.Nodes[1].ID = "a"; w.Edges[0].To = "a" }, "duplicate node id"},
		{"negative attempts", func(w *Workflow) { w.Nodes[0].Retry = &Retry{MaxAttempts: -1} }, "max_attempts"},
		{"negative delay", func(w *Workflow) { w.Nodes[0].Retry = &Retry{MaxAttempts: 2, DelayMS: -5} }, "delay_ms"},
		{"input collides", func(w *Workflow) { w.Inputs = map[string]Input{"a": {}} }, "collides with a node id"},
		{"bad input name", func(w *Workflow) { w.Inputs = map[string]Input{"no.dots": {}} }, "not a valid identifier"},
		{"unknown from", func(w *Workflow) { w.Edges[0].From = "ghost" }, `unknown node "ghost"`},
		{"unknown to", func(w *Workflow) { w.Edges[0].To = "ghost" }, `unknown node "ghost"`},
		{"ambiguous action", func(w *Workflow) {
			w.Edges = append(w.Edges, Edge{From: "a", To: "b", Action: "default"})
		}, "more than one edge for action"},
		{"orphan", func(w *Workflow) { w.Edges = nil }, `unreachable from entry "a": b`},
		{"output without source", func(w *Workflow) { w.Outputs = map[string]Output{"x": {}} }, "has no source"},
		{"bad mode", func(w *Workflow) { w.TemplateResolutionMode = "lenient" }, "resolution mode"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := base()
			tc.mutate(w)
			err := w.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
			re, ok := types.AsRunError(err)
			require.True(t, ok)
			assert.Equal(t, types.CategoryCompile, re.Category)
		})
	}

	require.NoError(t, base().Validate())
}

func TestValidateEmptyActionIsDefault(t *testing.T) {
	t.Parallel()

	w := &Workflow{
		Version: Version,
		Nodes:   []Node{{ID: "a", Type: "t"}, {ID: "b", Type: "t"}},
		Edges: []Edge{
			{From: "a", To: "b"},
			{From: "a", To: "b", Action: "default"},
		},
	}
	err := w.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one edge for action")
}

func TestUnreachableDiamondOK(t *testing.T) {
	t.Parallel()

	w := &Workflow{
		Version: Version,
		Nodes: []Node{
			{ID: "start", Type: "t"},
			{ID: "left", Type: "t"},
			{ID: "right", Type: "t"},
			{ID: "join", Type: "t"},
		},
		Edges: []Edge{
			{From: "start", To: "left", Action: "left"},
			{From: "start", To: "right", Action: "right"},
			{From: "left", To: "join"},
			{From: "right", To: "join"},
		},
	}
	require.NoError(t, w.Validate())
}

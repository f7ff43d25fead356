// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cascadeflow/cascade/config"
	"github.com/cascadeflow/cascade/trace"
	"github.com/cascadeflow/cascade/types"
)

// execCLI drives the root command in process and captures its output.
// Flag state is reset first so earlier invocations cannot leak values.
func execCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCommandState()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetCommandState() {
	runFlags.configPath, runFlags.inputsJSON, runFlags.mode = "", "", ""
	runFlags.baseDir, runFlags.traceDir, runFlags.mcpConfig = "", "", ""
	runFlags.inputs, runFlags.skipScan = nil, nil
	runFlags.batchLimit, runFlags.maxHops = 0, 0
	validateFlags.configPath, validateFlags.mcpConfig = "", ""
	traceFlags.dir, traceFlags.rawJSON = "", false
	historyFlags.configPath, historyFlags.driver, historyFlags.dsn, historyFlags.workflow = "", "", "", ""
	historyFlags.limit = 20
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const copyFlow = `ir_version: 1
name: copy
nodes:
  - id: reader
    type: read_file
    params:
      path: src.txt
  - id: writer
    type: write_file
    params:
      path: out.txt
      content: "${greeting}: ${reader.content}"
edges:
  - from: reader
    to: writer
inputs:
  greeting:
    type: string
    required: true
outputs:
  written:
    source: "${writer.path}"
`

func TestRunCommandExecutesWorkflow(t *testing.T) {
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "copy.yaml")
	writeFile(t, wfPath, copyFlow)
	writeFile(t, filepath.Join(dir, "src.txt"), "hello")
	traceDir := filepath.Join(dir, "traces")

	out, err := execCLI(t, "run", wfPath,
		"--inputs-json", `{"greeting":"copied"}`,
		"--trace-dir", traceDir)
	require.NoError(t, err, out)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "copied: hello", string(data))

	var res struct {
		Status  string                 `json:"status"`
		Success bool                   `json:"success"`
		Outputs map[string]types.Value `json:"outputs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "SUCCESS", res.Status)
	assert.True(t, res.Success)
	written, _ := res.Outputs["written"].AsString()
	assert.Equal(t, filepath.Join(dir, "out.txt"), written)

	artifacts, err := filepath.Glob(filepath.Join(traceDir, "run-*.json"))
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)
}

func TestRunCommandReportsFailure(t *testing.T) {
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "broken.yaml")
	writeFile(t, wfPath, `ir_version: 1
name: broken
nodes:
  - id: reader
    type: read_file
    params:
      path: missing.txt
`)

	out, err := execCLI(t, "run", wfPath,
		"--inputs-json", "", "--trace-dir", filepath.Join(dir, "traces"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAILED")
	assert.Contains(t, out, `"status": "FAILED"`)
}

func TestRunCommandMissingRequiredInput(t *testing.T) {
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "copy.yaml")
	writeFile(t, wfPath, copyFlow)
	writeFile(t, filepath.Join(dir, "src.txt"), "hello")

	out, err := execCLI(t, "run", wfPath,
		"--inputs-json", "", "--trace-dir", filepath.Join(dir, "traces"))
	require.Error(t, err)
	assert.Contains(t, out, "greeting")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "copy.yaml")
	writeFile(t, wfPath, copyFlow)

	out, err := execCLI(t, "validate", wfPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "copy: ok")
	assert.Contains(t, out, "2 nodes")
}

func TestValidateCommandUnknownType(t *testing.T) {
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "bad.yaml")
	writeFile(t, wfPath, `ir_version: 1
name: bad
nodes:
  - id: x
    type: no_such_type
`)

	_, err := execCLI(t, "validate", wfPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_type")
}

func TestValidateCommandCatchesBadReference(t *testing.T) {
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "dangling.yaml")
	writeFile(t, wfPath, `ir_version: 1
name: dangling
nodes:
  - id: writer
    type: write_file
    params:
      path: out.txt
      content: "${ghost.content}"
`)

	_, err := execCLI(t, "validate", wfPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestTraceCommand(t *testing.T) {
	dir := t.TempDir()
	artifact := &trace.Artifact{
		FormatVersion: trace.FormatVersion,
		RunID:         "r-123",
		Workflow:      "copy",
		FinalStatus:   types.RunSuccess,
		StartedAt:     time.Now().Add(-time.Second),
		FinishedAt:    time.Now(),
		Nodes: []trace.Event{
			{NodeID: "reader", Type: "read_file", Attempt: 1, Success: true, DurationMS: 12},
			{NodeID: "writer", Type: "write_file", Attempt: 2, Success: true, Action: "done", DurationMS: 3},
		},
		Warnings: []types.RunWarning{types.Warningf("BATCH_TRUNCATED", "reader", "processed 2 of 5 items")},
		Summary:  types.MetricsSummary{NodesExecuted: 2, DurationMS: 15},
	}
	path := trace.FilePath(dir, artifact.RunID)
	require.NoError(t, artifact.WriteFile(path))

	out, err := execCLI(t, "trace", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Run:      r-123")
	assert.Contains(t, out, "Status:   SUCCESS")
	assert.Contains(t, out, "reader")
	assert.Contains(t, out, "writer")
	assert.Contains(t, out, "BATCH_TRUNCATED")

	// Run ID resolution against --dir.
	out, err = execCLI(t, "trace", artifact.RunID, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Run:      r-123")

	// Raw JSON mode.
	out, err = execCLI(t, "trace", path, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "r-123"`)
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	wfPath := filepath.Join(dir, "copy.yaml")
	writeFile(t, wfPath, copyFlow)
	writeFile(t, filepath.Join(dir, "src.txt"), "hello")
	dbPath := filepath.Join(dir, "cascade.db")

	cfgPath := filepath.Join(dir, "cascade.yaml")
	writeFile(t, cfgPath, `history:
  enabled: true
  driver: sqlite
  dsn: `+dbPath+`
trace:
  enabled: false
log:
  level: error
`)

	out, err := execCLI(t, "run", wfPath,
		"--config", cfgPath,
		"--inputs-json", `{"greeting":"kept"}`)
	require.NoError(t, err, out)

	var res struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.RunID)

	out, err = execCLI(t, "history", "--driver", "sqlite", "--dsn", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, res.RunID)
	assert.Contains(t, out, "copy")

	out, err = execCLI(t, "history", res.RunID, "--driver", "sqlite", "--dsn", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Workflow: copy")
	assert.Contains(t, out, "reader")
	assert.Contains(t, out, "writer")
}

func TestParseInputs(t *testing.T) {
	t.Parallel()

	t.Run("pairs", func(t *testing.T) {
		t.Parallel()
		inputs, err := parseInputs([]string{"a=1", "b=two words"}, "")
		require.NoError(t, err)
		a, _ := inputs["a"].AsString()
		b, _ := inputs["b"].AsString()
		assert.Equal(t, "1", a)
		assert.Equal(t, "two words", b)
	})

	t.Run("json inline keeps types", func(t *testing.T) {
		t.Parallel()
		inputs, err := parseInputs(nil, `{"n":3,"ok":true}`)
		require.NoError(t, err)
		n, _ := inputs["n"].AsInt()
		ok, _ := inputs["ok"].AsBool()
		assert.Equal(t, int64(3), n)
		assert.True(t, ok)
	})

	t.Run("json from file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "inputs.json")
		writeFile(t, path, `{"topic":"go"}`)
		inputs, err := parseInputs(nil, "@"+path)
		require.NoError(t, err)
		topic, _ := inputs["topic"].AsString()
		assert.Equal(t, "go", topic)
	})

	t.Run("pair overrides json", func(t *testing.T) {
		t.Parallel()
		inputs, err := parseInputs([]string{"topic=rust"}, `{"topic":"go"}`)
		require.NoError(t, err)
		topic, _ := inputs["topic"].AsString()
		assert.Equal(t, "rust", topic)
	})

	t.Run("invalid pair", func(t *testing.T) {
		t.Parallel()
		_, err := parseInputs([]string{"nokey"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key=value")
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()
		_, err := parseInputs(nil, "{broken")
		require.Error(t, err)
	})

	t.Run("empty means nil", func(t *testing.T) {
		t.Parallel()
		inputs, err := parseInputs(nil, "")
		require.NoError(t, err)
		assert.Nil(t, inputs)
	})
}

func TestLoadToolServers(t *testing.T) {
	t.Parallel()

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "servers.yaml")
		writeFile(t, path, `- name: tools
  command: mcp-tools
  args: ["--stdio"]
`)
		servers, err := loadToolServers(path)
		require.NoError(t, err)
		require.Len(t, servers, 1)
		assert.Equal(t, "tools", servers[0].Name)
		assert.Equal(t, "mcp-tools", servers[0].Command)
		assert.Equal(t, []string{"--stdio"}, servers[0].Args)
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "servers.json")
		writeFile(t, path, `[{"name":"search","command":"mcp-search"}]`)
		servers, err := loadToolServers(path)
		require.NoError(t, err)
		require.Len(t, servers, 1)
		assert.Equal(t, "search", servers[0].Name)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := loadToolServers(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestOpenCheckpoints(t *testing.T) {
	t.Parallel()

	store, closer, err := openCheckpoints(config.CheckpointConfig{Backend: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.Nil(t, closer)

	store, closer, err = openCheckpoints(config.CheckpointConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.Nil(t, closer)

	_, _, err = openCheckpoints(config.CheckpointConfig{Backend: "etcd"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}

func TestInitLogger(t *testing.T) {
	t.Parallel()

	console := initLogger(config.LogConfig{Level: "debug", Format: "console"})
	require.NotNil(t, console)
	_ = console.Sync()

	structured := initLogger(config.LogConfig{Level: "error", Format: "json", EnableCaller: true})
	require.NotNil(t, structured)
	_ = structured.Sync()
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "12ms", formatDuration(12))
	assert.Equal(t, "1.5s", formatDuration(1500))
	assert.Equal(t, "0s", formatDuration(0))
}

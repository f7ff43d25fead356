// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package trace

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/types"
)

func TestLimitsString(t *testing.T) {
	t.Parallel()

	l := Limits{MaxStringLen: 10}

	assert.Equal(t, "short", l.String("short"))
	assert.Equal(t, strings.Repeat("x", 10), l.String(strings.Repeat("x", 10)))

	long := strings.Repeat("x", 50)
	got := l.String(long)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("x", 10)))
	assert.Contains(t, got, "[truncated, 50 bytes total]")

	assert.Equal(t, "<binary: 3 bytes>", l.String("\xff\xfe\x00"))

	// The cut never splits a rune.
	multi := strings.Repeat("é", 20)
	cut := l.String(multi)
	idx := strings.Index(cut, "...")
	require.Greater(t, idx, 0)
	assert.True(t, strings.HasSuffix(cut[:idx], "é"))
}

func TestLimitsValue(t *testing.T) {
	t.Parallel()

	l := Limits{MaxStringLen: 5, MaxListItems: 2, MaxMapKeys: 2}

	v := types.MustValue(map[string]any{
		"alpha": "abcdefghij",
		"beta":  []any{"one", "two", "three", "four"},
		"gamma": 3,
		"delta": true,
	})
	out := l.Value(v)

	m, ok := out.AsMap()
	require.True(t, ok)

	// Keys kept in sorted order, the rest marked.
	require.Contains(t, m, "alpha")
	require.Contains(t, m, "beta")
	require.Contains(t, m, "_truncated")
	assert.NotContains(t, m, "gamma")

	alpha, _ := m["alpha"].AsString()
	assert.Contains(t, alpha, "[truncated, 10 bytes total]")

	items, ok := m["beta"].AsList()
	require.True(t, ok)
	require.Len(t, items, 3)
	marker, _ := items[2].AsString()
	assert.Equal(t, "<truncated: 2 more items>", marker)
}

func TestLimitsValueUnlimited(t *testing.T) {
	t.Parallel()

	var l Limits
	v := types.MustValue(map[string]any{"k": strings.Repeat("x", 100000)})
	assert.True(t, v.Equal(l.Value(v)))
}

func TestLimitsCalls(t *testing.T) {
	t.Parallel()

	l := Limits{MaxStringLen: 8}
	calls := []types.LLMCallRecord{{
		Model:    "gpt-4o-mini",
		Prompt:   strings.Repeat("p", 100),
		Response: "short",
	}}
	out := l.Calls(calls)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Prompt, "[truncated, 100 bytes total]")
	assert.Equal(t, "short", out[0].Response)
	// Input slice stays untouched.
	assert.Len(t, calls[0].Prompt, 100)
}

func TestRecorderArtifact(t *testing.T) {
	t.Parallel()

	r := NewRecorder("run-1", "demo", DefaultLimits())

	r.NodeDispatched(node.DispatchRecord{
		NodeID:    "fetch",
		Type:      "read_file",
		Attempt:   1,
		Action:    "default",
		StartedAt: time.Now(),
		Duration:  12 * time.Millisecond,
		StoreDiff: map[string]types.Value{"fetch": types.MustValue(map[string]any{"content": "hi"})},
		Usage: []types.LLMCallRecord{
			{Model: "gpt-4o-mini", TotalTokens: 42},
		},
	})
	r.NodeDispatched(node.DispatchRecord{
		NodeID:  "save",
		Type:    "write_file",
		Attempt: 1,
		Err:     types.Errorf(types.CategoryExecution, "disk full").WithNode("save"),
	})

	summary := types.MetricsSummary{NodesExecuted: 2, Errors: 1, DurationMS: 20}
	a := r.Finish(types.RunFailed, nil,
		[]*types.RunError{types.Errorf(types.CategoryExecution, "disk full")}, summary)

	assert.Equal(t, FormatVersion, a.FormatVersion)
	assert.Equal(t, "run-1", a.RunID)
	assert.Equal(t, types.RunFailed, a.FinalStatus)
	require.Len(t, a.Nodes, 2)
	assert.True(t, a.Nodes[0].Success)
	assert.False(t, a.Nodes[1].Success)
	assert.Equal(t, int64(12), a.Nodes[0].DurationMS)
	require.NotNil(t, a.Nodes[1].Error)
	assert.Equal(t, types.CategoryExecution, a.Nodes[1].Error.Category)
	assert.Equal(t, 2, a.Summary.NodesExecuted)
}

func TestArtifactFileRoundTrip(t *testing.T) {
	t.Parallel()

	r := NewRecorder("run-2", "demo", DefaultLimits())
	r.NodeDispatched(node.DispatchRecord{NodeID: "only", Attempt: 1})
	a := r.Finish(types.RunSuccess, nil, nil, types.MetricsSummary{NodesExecuted: 1})

	path := FilePath(filepath.Join(t.TempDir(), "traces"), "run-2")
	require.NoError(t, a.WriteFile(path))

	back, err := ReadArtifact(path)
	require.NoError(t, err)
	if diff := cmp.Diff(a, back); diff != "" {
		t.Fatalf("artifact changed through the file roundtrip (-wrote +read):\n%s", diff)
	}

	_, err = ReadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestFilePath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("traces", "run-abc.json"), FilePath("traces", "abc"))
}

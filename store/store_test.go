// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascade/types"
)

func TestSharedBasics(t *testing.T) {
	t.Parallel()

	s := New()
	s.Set("topic", types.NewString("weather"))

	v, ok := s.Get("topic")
	require.True(t, ok)
	text, _ := v.AsString()
	assert.Equal(t, "weather", text)

	s.Delete("topic")
	_, ok = s.Get("topic")
	assert.False(t, ok)
}

func TestSharedNamespaceWrites(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetIn("fetch", "content", types.NewString("hello"))
	s.SetIn("fetch", "status", types.NewInt(200))

	ns, ok := s.Namespace("fetch")
	require.True(t, ok)
	assert.Equal(t, 2, ns.Len())

	v, ok := s.GetIn("fetch", "status")
	require.True(t, ok)
	n, _ := v.AsInt()
	assert.Equal(t, 200, n)

	assert.Equal(t, []string{"content", "status"}, s.NamespaceKeys("fetch"))
}

func TestSharedNamespaceReplacesNonMapRoot(t *testing.T) {
	t.Parallel()

	s := New()
	s.Set("n1", types.NewString("plain"))
	s.SetIn("n1", "out", types.NewBool(true))

	ns, ok := s.Namespace("n1")
	require.True(t, ok)
	_, ok = ns.Field("out")
	assert.True(t, ok)
}

// Two scoped views over the same store must never observe each other's
// writes through their own reads, even for identical key names.
func TestViewIsolation(t *testing.T) {
	t.Parallel()

	s := New()
	root := NewView(s)

	a := root.Narrow("a", true)
	b := root.Narrow("b", true)

	a.Set("result", types.NewString("from-a"))
	b.Set("result", types.NewString("from-b"))

	got, ok := a.Get("result")
	require.True(t, ok)
	text, _ := got.AsString()
	assert.Equal(t, "from-a", text)

	got, ok = b.Get("result")
	require.True(t, ok)
	text, _ = got.AsString()
	assert.Equal(t, "from-b", text)

	// The only root keys are the two namespaces.
	assert.Equal(t, []string{"a", "b"}, s.Keys())
}

func TestViewRootFallbackRead(t *testing.T) {
	t.Parallel()

	s := New()
	s.Set("topic", types.NewString("injected"))

	v := NewView(s).Narrow("node", true)

	got, ok := v.Get("topic")
	require.True(t, ok, "namespaced reads must fall back to root inputs")
	text, _ := got.AsString()
	assert.Equal(t, "injected", text)

	// Namespace shadows root once the node writes the same key.
	v.Set("topic", types.NewString("own"))
	got, _ = v.Get("topic")
	text, _ = got.AsString()
	assert.Equal(t, "own", text)
}

func TestViewUnscopedPassthrough(t *testing.T) {
	t.Parallel()

	s := New()
	v := NewView(s).Narrow("legacy", false)

	v.Set("result", types.NewString("flat"))

	_, ok := s.Namespace("legacy")
	assert.False(t, ok, "disabled namespacing writes at the root")

	got, ok := s.Get("result")
	require.True(t, ok)
	text, _ := got.AsString()
	assert.Equal(t, "flat", text)
}

func TestDiff(t *testing.T) {
	t.Parallel()

	before := map[string]types.Value{
		"keep":   types.NewString("same"),
		"change": types.NewInt(1),
		"drop":   types.NewBool(true),
	}
	after := map[string]types.Value{
		"keep":   types.NewString("same"),
		"change": types.NewInt(2),
		"added":  types.NewString("new"),
	}

	d := Diff(before, after)
	require.Len(t, d, 3)
	n, _ := d["change"].AsInt()
	assert.Equal(t, 2, n)
	assert.True(t, d["drop"].IsNull())
	_, hasKeep := d["keep"]
	assert.False(t, hasKeep)
}

func TestSnapshotIsDeep(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetIn("node", "list", types.MustValue([]any{"a"}))

	snap := s.Snapshot()
	s.SetIn("node", "list", types.MustValue([]any{"a", "b"}))

	ns := snap["node"]
	list, _ := ns.Field("list")
	assert.Equal(t, 1, list.Len(), "snapshot must not see later writes")
}

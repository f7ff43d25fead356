// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadeflow/cascade/node"
	"github.com/cascadeflow/cascade/template"
)

func nopFactory(Spec, Env) (node.Core, error) {
	return node.CoreFunc(func(context.Context, *node.Call) (node.Result, error) {
		return node.Result{}, nil
	}), nil
}

type fakeResolver struct {
	typ string
	err error
}

func (s fakeResolver) ResolveType(_ context.Context, typ string) (Entry, bool, error) {
	if s.err != nil {
		return Entry{}, false, s.err
	}
	if typ != s.typ {
		return Entry{}, false, nil
	}
	return Entry{Type: typ, Factory: nopFactory, Open: true}, true, nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register(Entry{Type: "read_file", Factory: nopFactory}))

	err := r.Register(Entry{Type: "read_file", Factory: nopFactory})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	require.Error(t, r.Register(Entry{Type: "", Factory: nopFactory}))
	require.Error(t, r.Register(Entry{Type: "no_factory"}))

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"read_file"}, r.Types())
}

func TestMustRegisterPanics(t *testing.T) {
	t.Parallel()

	r := New()
	r.MustRegister(Entry{Type: "a", Factory: nopFactory})
	assert.Panics(t, func() {
		r.MustRegister(Entry{Type: "a", Factory: nopFactory})
	})
}

func TestResolveOrder(t *testing.T) {
	t.Parallel()

	r := New()
	r.MustRegister(Entry{Type: "shell", Factory: nopFactory})
	r.AddDynamic(fakeResolver{typ: "mcp:search"})
	r.AddDynamic(fakeResolver{typ: "mcp:fetch"})

	ctx := context.Background()

	e, err := r.Resolve(ctx, "shell")
	require.NoError(t, err)
	assert.False(t, e.Open)

	e, err = r.Resolve(ctx, "mcp:fetch")
	require.NoError(t, err)
	assert.True(t, e.Open)

	_, err = r.Resolve(ctx, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown node type "nope"`)
}

func TestResolveDynamicError(t *testing.T) {
	t.Parallel()

	r := New()
	r.AddDynamic(fakeResolver{err: errors.New("server unreachable")})

	_, err := r.Resolve(context.Background(), "mcp:anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server unreachable")
}

func TestShapeHas(t *testing.T) {
	t.Parallel()

	out := Shape{
		"content": {Type: TypeString},
		"items": {Type: TypeList, Elem: &Field{
			Type: TypeMap,
			Fields: Shape{
				"name":  {Type: TypeString},
				"score": {Type: TypeNumber},
			},
		}},
		"meta":     {Type: TypeMap},
		"headers":  {Type: TypeMap, Fields: Shape{"etag": {Type: TypeString}}},
		"anything": {Type: TypeAny},
	}

	mustPath := func(s string) template.Path {
		p, err := template.ParsePath(s)
		require.NoError(t, err)
		return p
	}

	cases := []struct {
		path string
		want bool
	}{
		{"content", true},
		{"missing", false},
		{"items", true},
		{"items[0]", true},
		{"items[2].name", true},
		{"items[2].rank", false},
		{"content[0]", false},
		{"meta.any.key", true},
		{"headers.etag", true},
		{"headers.other", false},
		{"anything.deep[3].path", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, out.Has(mustPath(tc.path)), "path %s", tc.path)
	}

	assert.Equal(t, []string{"anything", "content", "headers", "items", "meta"}, out.Keys())
}

func TestShapeRequired(t *testing.T) {
	t.Parallel()

	in := Shape{
		"path":     {Type: TypeString, Required: true},
		"encoding": {Type: TypeString},
		"mode":     {Type: TypeString, Required: true},
	}
	assert.Equal(t, []string{"mode", "path"}, in.Required())
}

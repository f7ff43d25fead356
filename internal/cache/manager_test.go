// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cascadeflow/cascade/llm"
)

var _ llm.Cache = (*Manager)(nil)

func newTestManager(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	m, err := NewManager(Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return mr, m
}

func TestManagerRoundtrip(t *testing.T) {
	t.Parallel()

	_, m := newTestManager(t)
	ctx := context.Background()

	payload, ok, err := m.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, payload)

	require.NoError(t, m.Set(ctx, "k", []byte(`{"text":"cached"}`), time.Minute))

	payload, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"text":"cached"}`, string(payload))
}

func TestManagerTTL(t *testing.T) {
	t.Parallel()

	mr, m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("v"), time.Second))
	assert.Equal(t, time.Second, mr.TTL("short"))

	require.NoError(t, m.Set(ctx, "defaulted", []byte("v"), 0))
	assert.Equal(t, time.Minute, mr.TTL("defaulted"), "zero ttl falls back to the configured default")

	mr.FastForward(2 * time.Second)
	_, ok, err := m.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerPing(t *testing.T) {
	t.Parallel()

	mr, m := newTestManager(t)
	require.NoError(t, m.Ping(context.Background()))

	mr.SetError("redis gone")
	assert.Error(t, m.Ping(context.Background()))
}

func TestManagerClosed(t *testing.T) {
	t.Parallel()

	_, m := newTestManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	ctx := context.Background()
	_, _, err := m.Get(ctx, "k")
	assert.ErrorContains(t, err, "closed")
	assert.ErrorContains(t, m.Set(ctx, "k", []byte("v"), 0), "closed")
	assert.ErrorContains(t, m.Ping(ctx), "closed")
}

func TestNewManagerUnreachable(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Config{Addr: "127.0.0.1:1"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.ErrorContains(t, err, "127.0.0.1:1")
}

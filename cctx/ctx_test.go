package cctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithIsCopyOnWrite(t *testing.T) {
	base := With(context.Background(), "a", 1)
	child := With(base, "b", 2)

	_, ok := Get(base, "b")
	assert.False(t, ok)
	v, ok := GetAs[int](child, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = GetAs[string](child, "a")
	assert.False(t, ok)
}

func TestNewDeepCopies(t *testing.T) {
	nested := map[string]any{"k": []any{"x"}}
	ctx := New(context.Background(), map[string]any{"n": nested})
	nested["k"] = "changed"

	all := All(ctx)
	inner := all["n"].(map[string]any)
	assert.Equal(t, []any{"x"}, inner["k"])

	// mutating the returned copy leaves the bag alone
	inner["k"] = "again"
	again := All(ctx)["n"].(map[string]any)
	assert.Equal(t, []any{"x"}, again["k"])
}

func TestAllEmpty(t *testing.T) {
	assert.Equal(t, map[string]any{}, All(context.Background()))
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithTimeout(With(context.Background(), "env", "test"), time.Minute)
	d, stop := Detach(parent)
	defer stop()

	v, ok := Get(d, "env")
	require.True(t, ok)
	assert.Equal(t, "test", v)
	_, hasDeadline := d.Deadline()
	assert.False(t, hasDeadline)

	cancel()
	require.Error(t, parent.Err())
	assert.NoError(t, d.Err())

	stop()
	assert.ErrorIs(t, d.Err(), context.Canceled)
}

func TestDetachCancelledParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()
	d, stop := Detach(parent)
	defer stop()
	assert.NoError(t, d.Err())
}

func TestDetachWithTimeout(t *testing.T) {
	d, stop := DetachWithTimeout(context.Background(), 0)
	defer stop()
	_, ok := d.Deadline()
	assert.False(t, ok)

	parent, cancel := context.WithTimeout(context.Background(), time.Second)
	d2, stop2 := DetachWithTimeout(parent, time.Hour)
	defer stop2()
	cancel()

	dl, ok := d2.Deadline()
	require.True(t, ok)
	assert.Greater(t, time.Until(dl), 59*time.Minute)
	assert.NoError(t, d2.Err())
}

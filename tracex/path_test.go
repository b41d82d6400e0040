package tracex

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/xtrace/metax"
)

func TestSwapContext(t *testing.T) {
	a := testMetadata(t, 4)
	b := testMetadata(t, 8)

	ctx, prev := SwapContext(context.Background(), a)
	assert.False(t, prev.Valid())

	ctx, prev = SwapContext(ctx, b)
	assert.True(t, prev.Equal(a))
	cur, _ := GetContext(ctx)
	assert.True(t, cur.Equal(b))

	ClearContext(ctx)
	assert.False(t, HasContext(ctx))
	assert.Equal(t, "", TaskIDFromContext(ctx))
	assert.Equal(t, "", OpIDFromContext(ctx))
}

func TestDerivedContextsSharePath(t *testing.T) {
	md := testMetadata(t, 4)
	ctx := SetContext(context.Background(), md)
	child, cancel := context.WithCancel(ctx)
	defer cancel()

	next := testMetadata(t, 4)
	SetContext(child, next)
	cur, _ := GetContext(ctx)
	assert.True(t, cur.Equal(next))
}

func TestForkIsolatesPaths(t *testing.T) {
	tr, sink := newTestTracer()
	root := SetContext(context.Background(), testMetadata(t, 4))
	before, _ := GetContext(root)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(ctx context.Context) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.LogEvent(ctx, "worker", "step")
			}
		}(Fork(root))
	}
	wg.Wait()

	after, _ := GetContext(root)
	assert.True(t, after.Equal(before))

	rs := sink.parsed(t)
	require.Len(t, rs, 400)
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		assert.False(t, seen[r.OpID()], "duplicate op id %s", r.OpID())
		seen[r.OpID()] = true
	}
}

func TestForkWithoutContext(t *testing.T) {
	ctx := Fork(context.Background())
	require.NotNil(t, PathFromContext(ctx))
	assert.False(t, HasContext(ctx))
}

func TestDetachOutlivesParentScope(t *testing.T) {
	md := testMetadata(t, 8)
	parent, cancelParent := context.WithCancel(SetContext(context.Background(), md))

	bg, cancel := Detach(parent, 0)
	defer cancel()
	got, ok := GetContext(bg)
	require.True(t, ok)
	assert.True(t, got.Equal(md))

	cancelParent()
	require.Error(t, parent.Err())
	assert.NoError(t, bg.Err())

	// reports still flow after the request scope is gone, on a separate path
	tr, sink := newTestTracer()
	tr.LogEvent(bg, "worker", "late work")
	rs := sink.parsed(t)
	require.Len(t, rs, 1)
	assert.Equal(t, []string{md.OpIDString()}, rs[0].Get("Edge"))

	cur, _ := GetContext(parent)
	assert.True(t, cur.Equal(md))
	after, _ := GetContext(bg)
	assert.False(t, after.Equal(md))
	assert.True(t, after.TaskID().Equal(md.TaskID()))
}

func TestDetachFreshDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	bg, cancelBg := Detach(parent, time.Hour)
	defer cancelBg()

	<-parent.Done()
	dl, ok := bg.Deadline()
	require.True(t, ok)
	assert.Greater(t, time.Until(dl), 59*time.Minute)
	assert.NoError(t, bg.Err())
}

func TestHeaderHandOff(t *testing.T) {
	md := testMetadata(t, 8)
	md.SetSeverity(metax.SeverityWarning)
	ctx := SetContext(context.Background(), md)

	h := http.Header{}
	InjectToHeader(ctx, h)
	InjectToHeader(ctx, nil)
	assert.Equal(t, md.String(), h.Get(HeaderXTrace))

	server := ExtractFromHeader(context.Background(), h)
	got, ok := GetContext(server)
	require.True(t, ok)
	assert.True(t, got.Equal(md))
	assert.NotSame(t, PathFromContext(ctx), PathFromContext(server))

	empty := ExtractFromHeader(context.Background(), http.Header{HeaderXTrace: []string{"junk"}})
	assert.False(t, HasContext(empty))
	assert.NotNil(t, PathFromContext(empty))

	_, ok = MetadataFromHeader(nil)
	assert.False(t, ok)
}

func TestEscapeNewlines(t *testing.T) {
	assert.Equal(t, `a\nb\r\\c`, escapeNewlines("a\nb\r\\c"))
}

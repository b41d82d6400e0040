package tracex

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imattdu/xtrace/cctx"
	"github.com/imattdu/xtrace/metax"
)

// PathKey is the cctx key under which the execution path is stored.
const PathKey = "xtrace_path"

var pathSeq atomic.Uint64

// Path is the causal context cell of one execution path. It is either empty
// or holds one valid Metadata. All contexts derived from the context that
// carries a Path share it; Fork starts a new one.
type Path struct {
	mu  sync.Mutex
	md  metax.Metadata
	has bool
	rng *rand.Rand
}

func newPath() *Path {
	return &Path{rng: rand.New(rand.NewPCG(pathSeed()))}
}

// pathSeed mixes host, process, path sequence and clock so concurrently
// created paths draw from unrelated streams.
func pathSeed() (uint64, uint64) {
	h := fnv.New64a()
	host, _ := os.Hostname()
	_, _ = h.Write([]byte(host))
	hi := h.Sum64() ^ uint64(os.Getpid())<<32
	lo := uint64(time.Now().UnixNano()) ^ pathSeq.Add(1)*0x9E3779B97F4A7C15
	return hi, lo
}

func (p *Path) get() (metax.Metadata, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.has {
		return metax.Invalid(), false
	}
	return p.md.Clone(), true
}

func (p *Path) set(md metax.Metadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(md)
}

func (p *Path) setLocked(md metax.Metadata) {
	if !md.Valid() {
		p.md, p.has = metax.Metadata{}, false
		return
	}
	p.md, p.has = md.Clone(), true
}

func (p *Path) swap(md metax.Metadata) metax.Metadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := metax.Invalid()
	if p.has {
		old = p.md
	}
	p.setLocked(md)
	return old
}

func (p *Path) opID(n int) []byte {
	b := make([]byte, n)
	p.mu.Lock()
	for i := range b {
		b[i] = byte(p.rng.Uint32())
	}
	p.mu.Unlock()
	return b
}

// -------------------- ctx access --------------------

// PathFromContext returns the execution path carried by ctx, or nil.
func PathFromContext(ctx context.Context) *Path {
	if ctx == nil {
		return nil
	}
	p, _ := cctx.GetAs[*Path](ctx, PathKey)
	return p
}

// WithPath returns a ctx carrying a fresh, empty execution path.
func WithPath(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return cctx.With(ctx, PathKey, newPath())
}

// ensurePath returns ctx unchanged when it already has a path.
func ensurePath(ctx context.Context) (context.Context, *Path) {
	if p := PathFromContext(ctx); p != nil {
		return ctx, p
	}
	ctx = WithPath(ctx)
	return ctx, PathFromContext(ctx)
}

// Fork returns a ctx with a new execution path seeded with a copy of the
// current metadata. Use it before handing work to another goroutine.
func Fork(ctx context.Context) context.Context {
	md, ok := GetContext(ctx)
	ctx = WithPath(ctx)
	if ok {
		PathFromContext(ctx).set(md)
	}
	return ctx
}

// Detach is Fork on a context that outlives ctx's cancellation. It keeps
// ctx's values, and gets a fresh deadline timeout from now when timeout > 0.
// Use it for work a request kicks off and does not wait for.
func Detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := cctx.DetachWithTimeout(ctx, timeout)
	return Fork(ctx), cancel
}

// SetContext makes md the current metadata of the path in ctx, attaching a
// new path when ctx has none. Invalid metadata clears the path.
func SetContext(ctx context.Context, md metax.Metadata) context.Context {
	ctx, p := ensurePath(ctx)
	p.set(md)
	return ctx
}

// GetContext returns the current metadata; ok is false when the path is
// empty or absent.
func GetContext(ctx context.Context) (metax.Metadata, bool) {
	p := PathFromContext(ctx)
	if p == nil {
		return metax.Invalid(), false
	}
	return p.get()
}

// HasContext reports whether ctx carries valid metadata.
func HasContext(ctx context.Context) bool {
	_, ok := GetContext(ctx)
	return ok
}

// ClearContext empties the path in ctx.
func ClearContext(ctx context.Context) {
	if p := PathFromContext(ctx); p != nil {
		p.set(metax.Invalid())
	}
}

// SwapContext installs md and returns the previous metadata, invalid when
// there was none.
func SwapContext(ctx context.Context, md metax.Metadata) (context.Context, metax.Metadata) {
	ctx, p := ensurePath(ctx)
	return ctx, p.swap(md)
}

// TaskIDFromContext returns the hex task id, or "" without context.
func TaskIDFromContext(ctx context.Context) string {
	md, ok := GetContext(ctx)
	if !ok {
		return ""
	}
	return md.TaskID().String()
}

// OpIDFromContext returns the hex op id, or "" without context.
func OpIDFromContext(ctx context.Context) string {
	md, ok := GetContext(ctx)
	if !ok {
		return ""
	}
	return md.OpIDString()
}

// Package cctx carries a copy-on-write bag of request-scoped values in a
// context. The X-Trace execution path lives in it, as do any fields the
// logger should print on every line of a request.
package cctx

import (
	"context"
	"time"
)

type bagKeyType struct{}

var bagKey bagKeyType

// bag is never mutated after it is stored; every write copies it.
type bag map[string]any

func bagFrom(ctx context.Context) bag {
	if b, ok := ctx.Value(bagKey).(bag); ok && b != nil {
		return b
	}
	return nil
}

// deepCopy recurses into map[string]any and []any only. Pointers, such as
// an execution path, are shared.
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepCopy(x[i])
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

// New returns a child of parent whose bag is a deep copy of data.
func New(parent context.Context, data map[string]any) context.Context {
	return context.WithValue(parent, bagKey, bag(deepCopyMap(data)))
}

// With returns a child of ctx with key set to val.
func With(ctx context.Context, key string, val any) context.Context {
	return WithMany(ctx, map[string]any{key: val})
}

// WithMany returns a child of ctx with every pair of kv set.
func WithMany(ctx context.Context, kv map[string]any) context.Context {
	old := bagFrom(ctx)
	next := make(map[string]any, len(old)+len(kv))
	for k, v := range old {
		next[k] = v
	}
	for k, v := range kv {
		next[k] = deepCopy(v)
	}
	return context.WithValue(ctx, bagKey, bag(next))
}

func Get(ctx context.Context, key string) (any, bool) {
	if b := bagFrom(ctx); b != nil {
		v, ok := b[key]
		return v, ok
	}
	return nil, false
}

// GetAs reads key and asserts it to T.
func GetAs[T any](ctx context.Context, key string) (T, bool) {
	var zero T
	v, ok := Get(ctx, key)
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	if !ok {
		return zero, false
	}
	return tv, true
}

// All returns a deep copy of the bag, never nil.
func All(ctx context.Context) map[string]any {
	if b := bagFrom(ctx); b != nil {
		return deepCopyMap(b)
	}
	return map[string]any{}
}

// Detach returns a context that keeps the values of parent but not its
// cancellation or deadline, so work started from it survives the end of a
// request handler. Call cancel when the work is done.
func Detach(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(parent))
}

// DetachWithTimeout is Detach with a fresh deadline timeout from now.
// timeout <= 0 means no deadline.
func DetachWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return Detach(parent)
	}
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

package tracex

import (
	"context"
	"net/http"

	"github.com/imattdu/xtrace/metax"
)

const HeaderXTrace = "X-Trace"

// -------------------- HTTP header hand-off --------------------

// InjectToHeader writes the current metadata of ctx into h.
func InjectToHeader(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	if md, ok := GetContext(ctx); ok {
		h.Set(HeaderXTrace, md.String())
	}
}

// MetadataFromHeader decodes the X-Trace header.
func MetadataFromHeader(h http.Header) (metax.Metadata, bool) {
	if h == nil {
		return metax.Invalid(), false
	}
	v := h.Get(HeaderXTrace)
	if v == "" {
		return metax.Invalid(), false
	}
	md := metax.Parse(v)
	return md, md.Valid()
}

// ExtractFromHeader returns a ctx with a fresh execution path that holds the
// metadata of h, or an empty path when h carries none. Server side of a hop.
func ExtractFromHeader(ctx context.Context, h http.Header) context.Context {
	ctx = WithPath(ctx)
	if md, ok := MetadataFromHeader(h); ok {
		PathFromContext(ctx).set(md)
	}
	return ctx
}

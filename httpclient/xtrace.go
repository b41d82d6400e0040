package httpclient

import (
	"context"
	"net/http"

	"github.com/imattdu/xtrace/tracex"
)

// TraceBefore injects the current X-Trace metadata into outgoing requests.
func TraceBefore() BeforeFunc {
	return func(ctx context.Context, req *http.Request) {
		tracex.InjectToHeader(ctx, req.Header)
	}
}

// TraceAfter joins the metadata returned in the response header into the
// caller's path, logging a reply event with edges to both sides. It runs
// once per call on the final attempt, so retried replies are not joined.
// A hook cannot hand a new context back, so a caller without a path gets
// nothing; such callers read the reply with tracex.MetadataFromHeader.
func TraceAfter(agent string) DoneFunc {
	return func(ctx context.Context, req *http.Request, resp *http.Response, err error) {
		if err != nil || resp == nil || !tracex.HasContext(ctx) {
			return
		}
		if md, ok := tracex.MetadataFromHeader(resp.Header); ok {
			tracex.Join(ctx, md, agent, req.Method+" "+req.URL.Path+" reply")
		}
	}
}

// WithTracing installs both X-Trace hooks.
func WithTracing(agent string) Option {
	return func(c *Config) {
		c.Before = append(c.Before, TraceBefore())
		c.Done = append(c.Done, TraceAfter(agent))
	}
}

package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/xtrace/tracex"
)

// traceWriter stamps the current metadata of the request path into the
// response header right before the header goes out.
type traceWriter struct {
	gin.ResponseWriter
	ctx  context.Context
	once sync.Once
}

func (w *traceWriter) inject() {
	w.once.Do(func() { tracex.InjectToHeader(w.ctx, w.ResponseWriter.Header()) })
}

func (w *traceWriter) WriteHeader(code int) {
	w.inject()
	w.ResponseWriter.WriteHeader(code)
}

func (w *traceWriter) WriteHeaderNow() {
	w.inject()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *traceWriter) Write(b []byte) (int, error) {
	w.inject()
	return w.ResponseWriter.Write(b)
}

func (w *traceWriter) WriteString(s string) (int, error) {
	w.inject()
	return w.ResponseWriter.WriteString(s)
}

// Trace gives every request its own execution path seeded from the X-Trace
// request header. A traced request is wrapped in a process named after the
// route; the response carries the metadata current when the header is sent.
func Trace(agent string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := tracex.ExtractFromHeader(c.Request.Context(), c.Request.Header)
		c.Request = c.Request.WithContext(ctx)
		if !tracex.HasContext(ctx) {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		p := tracex.StartProcess(ctx, agent, c.Request.Method+" "+route)
		c.Writer = &traceWriter{ResponseWriter: c.Writer, ctx: ctx}

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			tracex.FailProcessReason(ctx, p, http.StatusText(status))
			return
		}
		tracex.EndProcess(ctx, p)
	}
}

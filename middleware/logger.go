package middleware

import (
	"bytes"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/xtrace/jsonx"
	"github.com/imattdu/xtrace/logx"
)

// maxLoggedBody caps how much of a request or response body is logged.
const maxLoggedBody = 4 << 10

type responseWriter struct {
	body *bytes.Buffer
	gin.ResponseWriter
}

func (w responseWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

// bodyRecorder keeps the first maxLoggedBody bytes a handler reads from
// the request body, so the body still streams.
type bodyRecorder struct {
	io.ReadCloser
	head bytes.Buffer
	n    int
}

func (r *bodyRecorder) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += n
	if room := maxLoggedBody - r.head.Len(); room > 0 && n > 0 {
		r.head.Write(p[:min(room, n)])
	}
	return n, err
}

// Access logs every request on the way in and out. The request body is
// logged as far as the handler read it: decoded when it is complete JSON,
// otherwise as truncated text.
func Access(logger logx.Logger) gin.HandlerFunc {
	logger = logx.OrDefault(logger)
	return func(ctx *gin.Context) {
		req := ctx.Request
		c := req.Context()
		logMap := map[string]any{
			logx.Remote: req.RemoteAddr,
			logx.Method: req.Method,
			logx.Path:   req.URL.Path,
			logx.Query:  req.URL.RawQuery,
		}
		// records are encoded asynchronously, so log a copy
		logger.Info(c, logx.TagRequestIn, maps.Clone(logMap))

		var rec *bodyRecorder
		if req.Body != nil && req.Body != http.NoBody {
			rec = &bodyRecorder{ReadCloser: req.Body}
			ctx.Request.Body = rec
		}

		// capture the response
		writer := &responseWriter{body: bytes.NewBufferString(""), ResponseWriter: ctx.Writer}
		ctx.Writer = writer
		start := time.Now()
		ctx.Next()

		if rec != nil {
			logMap[logx.Bytes] = rec.n
			logMap[logx.Body] = loggableBody(req.Header.Get("Content-Type"), rec.head.Bytes(), rec.n > rec.head.Len())
		}
		logMap[logx.Status] = ctx.Writer.Status()
		logMap[logx.Response] = writer.body.String()
		logMap[logx.Cost] = time.Since(start).Milliseconds()
		logger.Info(ctx.Request.Context(), logx.TagRequestOut, logMap)
	}
}

func loggableBody(contentType string, b []byte, truncated bool) any {
	if len(b) == 0 {
		return nil
	}
	if !truncated && strings.HasPrefix(contentType, "application/json") {
		var v any
		if err := jsonx.Unmarshal(b, &v); err == nil {
			return v
		}
	}
	if truncated {
		return string(b) + "..."
	}
	return string(b)
}

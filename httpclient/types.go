package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/imattdu/xtrace/errorx"
)

// CallAttempt describes one attempt of a call.
type CallAttempt struct {
	Attempt   int           `json:"attempt"`
	Status    int           `json:"status"`
	Err       string        `json:"err,omitempty"`
	Cost      time.Duration `json:"cost"`
	WillRetry bool          `json:"will_retry"`
	ctx       context.Context
}

// CallStats describes a whole call including retries.
type CallStats struct {
	ctx context.Context

	Method string `json:"method"`
	URL    string `json:"url"`
	Path   string `json:"path"`
	Query  string `json:"query"`

	Body     string `json:"body,omitempty"`
	BodySize int    `json:"body_size,omitempty"`

	MaxAttempts int           `json:"max_attempts"`
	Attempts    int           `json:"attempts"`
	AttemptsLog []CallAttempt `json:"attempts_log,omitempty"`

	Status int           `json:"status"`
	Err    string        `json:"err,omitempty"`
	Cost   time.Duration `json:"cost"`
}

// StatsHook receives the stats of every call, e.g. for logging.
type StatsHook func(ctx context.Context, stats *CallStats)

// ---------- helpers ----------

// statusError keeps a short prefix of the body so a collector's JSON error
// reaches the log.
func statusError(status int, body []byte) error {
	const keep = 256
	if len(body) > keep {
		body = body[:keep]
	}
	return errorx.New(errorx.ErrHTTPStatus,
		errorx.WithMessage(fmt.Sprintf("unexpected status %d", status)),
		errorx.WithField("status", status), errorx.WithField("body", string(body)))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	dst := make(http.Header, len(h))
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		dst[k] = cp
	}
	return dst
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	dst := make([]byte, len(b))
	copy(dst, b)
	return dst
}

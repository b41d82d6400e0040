// Package tracex propagates X-Trace causal context through a program. Each
// execution path carries one Metadata in its context.Context; creating an
// event links it to the current metadata with an Edge and then advances the
// path to the event's own metadata.
package tracex

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/imattdu/xtrace/metax"
)

// Sink receives serialized reports. Send must not block the caller for long
// and must swallow its own failures.
type Sink interface {
	Send(ctx context.Context, report string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, report string)

func (f SinkFunc) Send(ctx context.Context, report string) { f(ctx, report) }

type nopSink struct{}

func (nopSink) Send(context.Context, string) {}

// Tracer creates events and hands their reports to a Sink.
type Tracer struct {
	sink      Sink
	opIDLen   int
	threshold metax.Severity
	now       func() time.Time
	host      string
}

type Option func(*Tracer)

func WithSink(s Sink) Option {
	return func(t *Tracer) {
		if s != nil {
			t.sink = s
		}
	}
}

// WithOpIDLength sets the op id length of new tasks. Only 4 and 8 apply.
func WithOpIDLength(n int) Option {
	return func(t *Tracer) {
		if metax.ValidOpIDLength(n) {
			t.opIDLen = n
		}
	}
}

// WithSeverityThreshold sets the level an inherited severity must be below
// for an event to be sent.
func WithSeverityThreshold(s metax.Severity) Option {
	return func(t *Tracer) { t.threshold = s }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		if now != nil {
			t.now = now
		}
	}
}

func WithHost(host string) Option {
	return func(t *Tracer) { t.host = host }
}

func New(opts ...Option) *Tracer {
	t := &Tracer{
		sink:      nopSink{},
		opIDLen:   8,
		threshold: metax.DefaultSeverity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.host == "" {
		if h, err := os.Hostname(); err == nil {
			t.host = h
		} else {
			t.host = "unknown"
		}
	}
	return t
}

func (t *Tracer) OpIDLength() int { return t.opIDLen }

func (t *Tracer) Threshold() metax.Severity { return t.threshold }

// -------------------- default tracer --------------------

var std atomic.Pointer[Tracer]

func init() {
	std.Store(New())
}

// Default returns the tracer used by the package-level functions.
func Default() *Tracer { return std.Load() }

// SetDefault replaces the package-level tracer, e.g. once a reporter is
// configured in main.
func SetDefault(t *Tracer) {
	if t != nil {
		std.Store(t)
	}
}

func CreateEvent(ctx context.Context, agent, label string) *Event {
	return Default().CreateEvent(ctx, agent, label)
}

func LogEvent(ctx context.Context, agent, label string, kv ...any) {
	Default().LogEvent(ctx, agent, label, kv...)
}

func StartTrace(ctx context.Context, agent, title string, tags ...string) context.Context {
	return Default().StartTrace(ctx, agent, title, tags...)
}

func StartProcess(ctx context.Context, agent, name string, kv ...any) Process {
	return Default().StartProcess(ctx, agent, name, kv...)
}

func EndProcess(ctx context.Context, p Process) { Default().EndProcess(ctx, p) }

func EndProcessLabel(ctx context.Context, p Process, label string) {
	Default().EndProcessLabel(ctx, p, label)
}

func FailProcess(ctx context.Context, p Process, err error) { Default().FailProcess(ctx, p, err) }

func FailProcessReason(ctx context.Context, p Process, reason string) {
	Default().FailProcessReason(ctx, p, reason)
}

func Join(ctx context.Context, remote metax.Metadata, agent, label string) context.Context {
	return Default().Join(ctx, remote, agent, label)
}

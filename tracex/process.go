package tracex

import (
	"context"
	"fmt"
	"strings"

	"github.com/imattdu/xtrace/metax"
	"github.com/imattdu/xtrace/reportx"
)

// Process brackets a named unit of work between a start and an end event.
// The two events carry Start and End fields with the process name, so the
// span shows up in the graph index.
type Process struct {
	start metax.Metadata
	agent string
	name  string
}

func (p Process) Name() string { return p.name }

// StartMetadata is the context right after the start event.
func (p Process) StartMetadata() metax.Metadata { return p.start.Clone() }

// StartProcess logs "<name> start" and snapshots the resulting context.
func (t *Tracer) StartProcess(ctx context.Context, agent, name string, kv ...any) Process {
	e := t.CreateEvent(ctx, agent, name+" start")
	e.Put(reportx.KeyStart, name)
	e.PutKV(kv...)
	e.Send(ctx)

	md, _ := GetContext(ctx)
	return Process{start: md, agent: agent, name: name}
}

func (t *Tracer) EndProcess(ctx context.Context, p Process) {
	t.EndProcessLabel(ctx, p, p.name+" end")
}

// EndProcessLabel logs the end event with edges from the current context
// and, when the context moved since the start, from the start as well.
func (t *Tracer) EndProcessLabel(ctx context.Context, p Process, label string) {
	t.closeProcess(ctx, p, label, nil)
}

// FailProcess ends p with an Exception field holding err's text.
func (t *Tracer) FailProcess(ctx context.Context, p Process, err error) {
	t.closeProcess(ctx, p, p.name+" failed", func(e *Event) {
		if err != nil {
			e.Put(reportx.KeyException, fmt.Sprintf("%+v", err))
		}
	})
}

// FailProcessReason ends p with a Reason field.
func (t *Tracer) FailProcessReason(ctx context.Context, p Process, reason string) {
	t.closeProcess(ctx, p, p.name+" failed", func(e *Event) {
		e.Put(reportx.KeyReason, reason)
	})
}

func (t *Tracer) closeProcess(ctx context.Context, p Process, label string, fill func(*Event)) {
	cur, ok := GetContext(ctx)
	if !ok {
		return
	}
	e := t.CreateEvent(ctx, p.agent, label)
	if !cur.Equal(p.start) {
		e.AddEdge(p.start)
	}
	e.Put(reportx.KeyEnd, p.name)
	if fill != nil {
		fill(e)
	}
	e.Send(ctx)
}

var newlineEscaper = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n")

func escapeNewlines(s string) string { return newlineEscaper.Replace(s) }

package tracex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/imattdu/xtrace/metax"
	"github.com/imattdu/xtrace/reportx"
)

// Event is one report under construction. A nil *Event is inert, which is
// what CreateEvent returns without context, so calls can be chained freely.
type Event struct {
	tracer   *Tracer
	opID     []byte
	md       metax.Metadata
	hasMD    bool
	report   *reportx.Report
	suppress bool
}

func (t *Tracer) newEvent(opID []byte) *Event {
	return &Event{tracer: t, opID: opID, report: reportx.New()}
}

// AddEdge records pred as a causal predecessor. The first valid
// predecessor also fixes the event's own metadata: its task id and options
// with this event's op id. A predecessor whose severity does not pass the
// tracer threshold marks the event as not to be sent.
func (e *Event) AddEdge(pred metax.Metadata) {
	if e == nil || !pred.Valid() {
		return
	}
	for _, o := range pred.Options() {
		if o.Type != metax.OptionSeverity || len(o.Payload) != 1 {
			continue
		}
		sev := metax.Severity(o.Payload[0])
		if !sev.Reportable(e.tracer.threshold) {
			e.suppress = true
		}
		if v := strconv.Itoa(int(sev)); !e.report.Has(reportx.KeySeverity, v) {
			e.report.Put(reportx.KeySeverity, v)
		}
	}

	if !e.hasMD {
		md := pred.Clone()
		md.SetOpID(e.opID)
		e.md, e.hasMD = md, true
		e.report.Set(reportx.KeyXTrace, md.String())
	}
	edge := pred.OpIDString()
	if !e.report.Has(reportx.KeyEdge, edge) {
		e.report.Put(reportx.KeyEdge, edge)
	}
}

// Put adds a field. Line breaks in the value are escaped, and line breaks
// and colons are dropped from the key, so one field stays one report line.
// A key left empty is ignored.
func (e *Event) Put(key, value string) {
	if e == nil {
		return
	}
	key = strings.TrimSpace(keyCleaner.Replace(key))
	if key == "" {
		return
	}
	e.report.Put(key, escapeNewlines(value))
}

// PutKV adds alternating key/value pairs with Put; a trailing key without a
// value is dropped.
func (e *Event) PutKV(kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		e.Put(fmt.Sprint(kv[i]), fmt.Sprint(kv[i+1]))
	}
}

var keyCleaner = strings.NewReplacer("\r", "", "\n", "", ":", "")

// Metadata is the event's own identity, invalid until an edge is added.
func (e *Event) Metadata() metax.Metadata {
	if e == nil || !e.hasMD {
		return metax.Invalid()
	}
	return e.md.Clone()
}

// WillReport reports whether Send would hand the report to the sink.
func (e *Event) WillReport() bool {
	return e != nil && !e.suppress
}

// Report stamps the current time and returns a copy of the report.
func (e *Event) Report() *reportx.Report {
	if e == nil {
		return nil
	}
	e.stamp()
	return e.report.Clone()
}

func (e *Event) stamp() {
	e.report.Set(reportx.KeyTimestamp, reportx.FormatTimestamp(e.tracer.now()))
}

// Send stamps the report and delivers it unless the event is suppressed.
func (e *Event) Send(ctx context.Context) {
	if e == nil {
		return
	}
	e.stamp()
	if e.suppress {
		return
	}
	e.tracer.sink.Send(ctx, e.report.String())
}

// -------------------- tracer operations --------------------

// CreateEvent builds an event that follows the current metadata of ctx and
// advances the path to it. It returns nil when ctx has no context.
func (t *Tracer) CreateEvent(ctx context.Context, agent, label string) *Event {
	p := PathFromContext(ctx)
	if p == nil {
		return nil
	}
	cur, ok := p.get()
	if !ok {
		return nil
	}

	n := cur.OpIDLength()
	if !metax.ValidOpIDLength(n) {
		n = t.opIDLen
	}
	e := t.newEvent(p.opID(n))
	e.AddEdge(cur)
	e.Put(reportx.KeyHost, t.host)
	e.Put(reportx.KeyAgent, agent)
	e.Put(reportx.KeyLabel, label)

	p.set(e.Metadata())
	return e
}

// LogEvent creates an event, attaches kv pairs and sends it. Without
// context it does nothing.
func (t *Tracer) LogEvent(ctx context.Context, agent, label string, kv ...any) {
	e := t.CreateEvent(ctx, agent, label)
	if e == nil {
		return
	}
	e.PutKV(kv...)
	e.Send(ctx)
}

// StartTrace begins a new task: a random 8-byte task id, a zero op id and a
// root event carrying the title and tags. The returned ctx holds the root
// event's metadata.
func (t *Tracer) StartTrace(ctx context.Context, agent, title string, tags ...string) context.Context {
	taskID, err := metax.NewTaskID(8)
	if err != nil {
		return ctx
	}
	ctx = SetContext(ctx, metax.New(taskID, make([]byte, t.opIDLen)))

	e := t.CreateEvent(ctx, agent, "Start Trace: "+title)
	e.Put(reportx.KeyTitle, title)
	for _, tag := range tags {
		e.Put(reportx.KeyTag, tag)
	}
	e.Send(ctx)
	return ctx
}

// Join merges remote, typically metadata returned by a downstream call,
// into the current path. With context it logs an event with edges to both;
// without it the path simply adopts remote.
func (t *Tracer) Join(ctx context.Context, remote metax.Metadata, agent, label string) context.Context {
	if !remote.Valid() {
		return ctx
	}
	if !HasContext(ctx) {
		return SetContext(ctx, remote)
	}
	cur, _ := GetContext(ctx)
	if cur.Equal(remote) {
		return ctx
	}
	e := t.CreateEvent(ctx, agent, label)
	e.AddEdge(remote)
	e.Send(ctx)
	return ctx
}

// Package reportx holds the X-Trace report: an ordered multimap of text
// fields with a line-oriented wire form.
//
//	X-Trace Report ver 1.0
//	Key1: Value1
//	Key2: Value2
//
// Reports in a stream are separated by a blank line.
package reportx

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/metax"
)

const Header = "X-Trace Report ver 1.0"

// well-known fields
const (
	KeyXTrace    = "X-Trace"
	KeyEdge      = "Edge"
	KeyStart     = "Start"
	KeyEnd       = "End"
	KeyTimestamp = "Timestamp"
	KeyHost      = "Host"
	KeyAgent     = "Agent"
	KeyLabel     = "Label"
	KeyTitle     = "Title"
	KeyTag       = "Tag"
	KeySeverity  = "Severity"
	KeyException = "Exception"
	KeyReason    = "Reason"
)

// Report maps field names to insertion-ordered value lists. Field order is
// first-insertion order. A Report is not safe for concurrent mutation.
type Report struct {
	keys   []string
	fields map[string][]string
}

func New() *Report {
	return &Report{fields: make(map[string][]string)}
}

// Put appends value to key.
func (r *Report) Put(key, value string) {
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = append(r.fields[key], value)
}

// Set replaces every value of key with value.
func (r *Report) Set(key, value string) {
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = []string{value}
}

// Get returns a copy of the values of key, nil when absent.
func (r *Report) Get(key string) []string {
	v, ok := r.fields[key]
	if !ok {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// First returns the first value of key.
func (r *Report) First(key string) (string, bool) {
	v := r.fields[key]
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// Has reports whether any value of key equals value.
func (r *Report) Has(key, value string) bool {
	for _, v := range r.fields[key] {
		if v == value {
			return true
		}
	}
	return false
}

func (r *Report) Remove(key string) {
	if _, ok := r.fields[key]; !ok {
		return
	}
	delete(r.fields, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in first-insertion order.
func (r *Report) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Report) Len() int { return len(r.keys) }

// Metadata decodes the X-Trace field. ok is false when the field is absent
// or does not decode to valid metadata.
func (r *Report) Metadata() (metax.Metadata, bool) {
	s, ok := r.First(KeyXTrace)
	if !ok {
		return metax.Invalid(), false
	}
	md := metax.Parse(s)
	if !md.Valid() {
		return metax.Invalid(), false
	}
	return md, true
}

// OpID returns the op id hex of the X-Trace field without a full decode.
func (r *Report) OpID() string {
	s, _ := r.First(KeyXTrace)
	return metax.FastOpID(s)
}

// TaskID returns the task id hex of the X-Trace field, empty when the report
// carries no valid metadata.
func (r *Report) TaskID() string {
	md, ok := r.Metadata()
	if !ok {
		return ""
	}
	return md.TaskID().String()
}

// Timestamp parses the first Timestamp field as seconds.
func (r *Report) Timestamp() (float64, bool) {
	s, ok := r.First(KeyTimestamp)
	if !ok {
		return 0, false
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Clone returns a deep copy.
func (r *Report) Clone() *Report {
	c := &Report{keys: r.Keys(), fields: make(map[string][]string, len(r.fields))}
	for k := range r.fields {
		c.fields[k] = r.Get(k)
	}
	return c
}

func (r *Report) String() string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, k := range r.keys {
		for _, v := range r.fields[k] {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Parse decodes one report. Leading blank lines are skipped and the first
// line must be the header. Each following line splits on its first ':'
// with key and value trimmed; lines without ':' or with an empty key are
// ignored. Parsing stops at the first blank line after the header.
func Parse(s string) (*Report, error) {
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	r := New()
	headerSeen := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !headerSeen {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if strings.TrimSpace(line) != Header {
				return nil, errorx.New(errorx.ErrMalformedReport,
					errorx.WithMessage(fmt.Sprintf("bad report header %q", line)))
			}
			headerSeen = true
			continue
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		r.putLine(line)
	}
	if err := sc.Err(); err != nil {
		return nil, errorx.Wrap(err, errorx.ErrMalformedReport)
	}
	if !headerSeen {
		return nil, errorx.New(errorx.ErrMalformedReport, errorx.WithMessage("empty report"))
	}
	return r, nil
}

func (r *Report) putLine(line string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return
	}
	r.Put(key, strings.TrimSpace(line[idx+1:]))
}

// FormatTimestamp renders t as seconds with millisecond precision.
func FormatTimestamp(t time.Time) string {
	ms := t.UnixMilli()
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

// ParseTimestamp reads a seconds.fraction timestamp.
func ParseTimestamp(s string) (float64, error) {
	ts, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errorx.Wrap(err, errorx.ErrMalformedReport)
	}
	return ts, nil
}

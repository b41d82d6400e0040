package reportx

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/xtrace/metax"
)

func TestReportPutSet(t *testing.T) {
	r := New()
	r.Put("Edge", "A")
	r.Put("Label", "x")
	r.Put("Edge", "B")
	assert.Equal(t, []string{"A", "B"}, r.Get("Edge"))
	assert.Equal(t, []string{"Edge", "Label"}, r.Keys())

	r.Set("Edge", "C")
	assert.Equal(t, []string{"C"}, r.Get("Edge"))
	assert.Equal(t, []string{"Edge", "Label"}, r.Keys())

	r.Remove("Edge")
	assert.Nil(t, r.Get("Edge"))
	assert.Equal(t, []string{"Label"}, r.Keys())

	v, ok := r.First("Label")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.True(t, r.Has("Label", "x"))
	assert.False(t, r.Has("Label", "y"))
}

func TestReportString(t *testing.T) {
	r := New()
	r.Put("X-Trace", "10AABBCCDD01020304")
	r.Put("Tag", "a")
	r.Put("Tag", "b")
	assert.Equal(t, "X-Trace Report ver 1.0\nX-Trace: 10AABBCCDD01020304\nTag: a\nTag: b\n", r.String())
}

func TestParseRoundTrip(t *testing.T) {
	r := New()
	r.Put("Edge", "00000001")
	r.Put("Edge", "00000002")
	r.Put("Agent", "svc")
	r.Put("Edge", "00000003")
	r.Put("Note", "colon: inside: value")
	r.Put("Empty", "")

	got, err := Parse(r.String())
	require.NoError(t, err)
	for _, k := range r.Keys() {
		assert.Equal(t, r.Get(k), got.Get(k), k)
	}
	assert.Equal(t, r.Keys(), got.Keys())
	assert.Equal(t, r.String(), got.String())
}

func TestParseTolerant(t *testing.T) {
	in := "\n  X-Trace Report ver 1.0\r\n  Agent :  svc  \r\nno colon here\n: novalue\nLabel:x\n\nAgent: next\n"
	r, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"svc"}, r.Get("Agent"))
	assert.Equal(t, []string{"x"}, r.Get("Label"))
	assert.Equal(t, 2, r.Len())
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"", "\n\n", "Not a report\nA: b\n"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestReportMetadata(t *testing.T) {
	r := New()
	_, ok := r.Metadata()
	assert.False(t, ok)
	assert.Equal(t, "00000000", r.OpID())

	r.Put(KeyXTrace, "garbage")
	_, ok = r.Metadata()
	assert.False(t, ok)

	md := metax.New(metax.TaskIDFromBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8}), []byte{0xA, 0xB, 0xC, 0xD})
	r.Set(KeyXTrace, md.String())
	got, ok := r.Metadata()
	require.True(t, ok)
	assert.True(t, got.Equal(md))
	assert.Equal(t, "0A0B0C0D", r.OpID())
	assert.Equal(t, "0102030405060708", r.TaskID())
}

func TestTimestamp(t *testing.T) {
	ts := time.UnixMilli(10250)
	assert.Equal(t, "10.250", FormatTimestamp(ts))
	assert.Equal(t, "10.005", FormatTimestamp(time.UnixMilli(10005)))

	r := New()
	_, ok := r.Timestamp()
	assert.False(t, ok)
	r.Put(KeyTimestamp, "10.250")
	v, ok := r.Timestamp()
	require.True(t, ok)
	assert.InDelta(t, 10.25, v, 1e-9)
}

func TestClone(t *testing.T) {
	r := New()
	r.Put("A", "1")
	c := r.Clone()
	c.Put("A", "2")
	c.Put("B", "3")
	assert.Equal(t, []string{"1"}, r.Get("A"))
	assert.Equal(t, []string{"A"}, r.Keys())
}

func TestScanner(t *testing.T) {
	a := New()
	a.Put("Agent", "a")
	b := New()
	b.Put("Agent", "b")
	b.Put("Edge", "00000001")

	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, a, b))
	buf.WriteString("garbage line\nmore: garbage\n\n\n")
	require.NoError(t, WriteStream(&buf, a))

	sc := NewScanner(&buf)
	var got []*Report
	for sc.Scan() {
		got = append(got, sc.Report())
	}
	require.NoError(t, sc.Err())
	require.Len(t, got, 3)
	assert.Equal(t, 1, sc.Skipped())
	assert.Equal(t, b.String(), got[1].String())
	assert.Equal(t, a.String(), got[2].String())
}

func TestParseStreamNoTrailingBlank(t *testing.T) {
	in := strings.TrimSuffix(Header+"\nA: 1\n\n"+Header+"\nA: 2\n", "\n")
	rs, err := ParseStream(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, []string{"2"}, rs[1].Get("A"))
}

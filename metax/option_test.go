package metax

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionPack(t *testing.T) {
	o := Option{Type: OptionSeverity, Payload: []byte{3}}
	assert.Equal(t, []byte{0xCE, 0x01, 0x03}, o.Pack())
	assert.Equal(t, "CE0103", o.String())

	empty := Option{Type: 0x42}
	assert.Equal(t, []byte{0x42, 0x00}, empty.Pack())
	assert.Equal(t, 2, empty.Size())
}

func TestParseOption(t *testing.T) {
	o, err := ParseOption("ce0103")
	require.NoError(t, err)
	assert.True(t, o.Equal(Option{Type: OptionSeverity, Payload: []byte{3}}))

	for _, bad := range []string{"", "CE", "CE02FF", "nothex"} {
		_, err := ParseOption(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewOptionRejectsLargePayload(t *testing.T) {
	_, err := NewOption(1, bytes.Repeat([]byte{1}, MaxOptionPayload+1))
	assert.Error(t, err)

	o, err := NewOption(1, bytes.Repeat([]byte{1}, MaxOptionPayload))
	require.NoError(t, err)
	assert.Equal(t, byte(255), o.Pack()[1])
}

func TestSeverityOption(t *testing.T) {
	md := New(TaskIDFromBytes([]byte{1, 2, 3, 4}), []byte{5, 6, 7, 8})
	assert.Equal(t, SeverityNotice, md.Severity())

	require.NoError(t, md.AddOption(Option{Type: 0x10, Payload: []byte{1}}))
	md.SetSeverity(SeverityErr)
	md.SetSeverity(SeverityDebug)

	opts := md.Options()
	require.Len(t, opts, 2)
	assert.Equal(t, byte(0x10), opts[0].Type)
	assert.Equal(t, OptionSeverity, opts[1].Type)
	assert.Equal(t, SeverityDebug, FromBytes(md.Pack()).Severity())
}

func TestParseSeverity(t *testing.T) {
	s, ok := ParseSeverity("warning")
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, s)

	s, ok = ParseSeverity("_ALL")
	require.True(t, ok)
	assert.Equal(t, SeverityAll, s)

	s, ok = ParseSeverity("3")
	require.True(t, ok)
	assert.Equal(t, SeverityErr, s)

	_, ok = ParseSeverity("loud")
	assert.False(t, ok)

	assert.True(t, SeverityErr.Reportable(SeverityNotice))
	assert.False(t, SeverityInfo.Reportable(SeverityNotice))
	assert.True(t, SeverityDebug.Reportable(SeverityAll))
	assert.False(t, SeverityEmerg.Reportable(SeverityEmerg))
	assert.False(t, SeverityEmerg.Reportable(SeverityNone))
}

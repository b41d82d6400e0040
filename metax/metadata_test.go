package metax

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTaskID(t *testing.T, n int) TaskID {
	t.Helper()
	id, err := NewTaskID(n)
	require.NoError(t, err)
	return id
}

func TestPackUnpackRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, tl := range []int{4, 8, 12, 20} {
		for _, ol := range []int{4, 8} {
			for nopts := 0; nopts <= 3; nopts++ {
				op := make([]byte, ol)
				r.Read(op)
				md := New(mustTaskID(t, tl), op)
				for i := 0; i < nopts; i++ {
					payload := make([]byte, r.Intn(6))
					r.Read(payload)
					require.NoError(t, md.AddOption(Option{Type: byte(0x10 + i), Payload: payload}))
				}

				packed := md.Pack()
				assert.Len(t, packed, md.Size())
				assert.Equal(t, byte(Version), packed[0]>>4)

				got := FromBytes(packed)
				assert.True(t, got.Equal(md), "tl=%d ol=%d opts=%d", tl, ol, nopts)
				assert.Equal(t, tl, got.TaskID().Len())
				assert.Equal(t, ol, got.OpIDLength())
				assert.Len(t, got.Options(), nopts)

				assert.True(t, Parse(md.String()).Equal(md))
				assert.True(t, Parse(strings.ToLower(md.String())).Equal(md))
			}
		}
	}
}

func TestUnpackAtOffset(t *testing.T) {
	md := New(mustTaskID(t, 12), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	packed := md.Pack()
	buf := append([]byte{0xFF, 0xFF, 0xFF}, packed...)
	got := Unpack(buf, 3, len(packed))
	assert.True(t, got.Equal(md))
}

func TestUnpackInvalid(t *testing.T) {
	md := New(mustTaskID(t, 8), []byte{1, 2, 3, 4})
	packed := md.Pack()

	cases := map[string]Metadata{
		"nil buffer":       Unpack(nil, 0, 9),
		"short length":     Unpack(packed, 0, 8),
		"negative offset":  Unpack(packed, -1, len(packed)),
		"buffer too small": Unpack(packed, 1, len(packed)),
		// flags claim a 20-byte task id that is not there
		"length disagrees": FromBytes(append([]byte{0x13}, packed[1:]...)),
		"options flag without length byte": FromBytes(append([]byte{packed[0] | flagOptions}, packed[1:]...)),
	}
	for name, got := range cases {
		assert.False(t, got.Valid(), name)
		assert.True(t, got.Equal(Invalid()), name)
	}

	assert.False(t, Parse("zz").Valid())
	assert.False(t, Parse("0").Valid())
	assert.False(t, Parse("").Valid())
}

func TestTruncatedOptionsKeepPrefix(t *testing.T) {
	md := New(mustTaskID(t, 4), []byte{9, 9, 9, 9})
	require.NoError(t, md.AddOption(Option{Type: 0x01, Payload: []byte{0xAA}}))
	require.NoError(t, md.AddOption(Option{Type: 0x02, Payload: []byte{0xBB, 0xCC}}))
	packed := md.Pack()

	got := FromBytes(packed[:len(packed)-1])
	require.True(t, got.Valid())
	opts := got.Options()
	require.Len(t, opts, 1)
	assert.Equal(t, byte(0x01), opts[0].Type)
}

func TestValidity(t *testing.T) {
	assert.False(t, Invalid().Valid())
	assert.False(t, Metadata{}.Valid())
	assert.Equal(t, "100000000000000000", Invalid().String())
	assert.Equal(t, "100000000000000000", Metadata{}.String())

	zero := New(TaskIDFromBytes(make([]byte, 8)), []byte{1, 2, 3, 4})
	assert.False(t, zero.Valid())

	id := make([]byte, 8)
	id[7] = 1
	assert.True(t, New(TaskIDFromBytes(id), make([]byte, 4)).Valid())

	assert.False(t, New(mustTaskID(t, 8), []byte{1, 2, 3}).Valid())
}

func TestSetOpID(t *testing.T) {
	md := New(mustTaskID(t, 8), []byte{0, 0, 0, 1})
	assert.False(t, md.SetOpID([]byte{1, 2}))
	assert.Equal(t, "00000001", md.OpIDString())

	assert.True(t, md.SetOpID([]byte{0xAB, 0, 0, 0, 0, 0, 0, 0xCD}))
	assert.Equal(t, "AB000000000000CD", md.OpIDString())
	assert.Equal(t, byte(flagOpID8), md.Pack()[0]&flagOpID8)
}

func TestOptionSizeLimit(t *testing.T) {
	md := New(mustTaskID(t, 20), make([]byte, 8))
	big := bytes.Repeat([]byte{7}, 200)
	require.NoError(t, md.AddOption(Option{Type: 1, Payload: big}))
	assert.Error(t, md.AddOption(Option{Type: 2, Payload: big}))
	require.NoError(t, md.AddOption(Option{Type: 3, Payload: make([]byte, 51)}))
	assert.LessOrEqual(t, len(md.Pack()), MaxPackedLen)
	assert.True(t, FromBytes(md.Pack()).Equal(md))
}

func TestCloneIsDeep(t *testing.T) {
	md := New(mustTaskID(t, 8), []byte{1, 1, 1, 1})
	require.NoError(t, md.AddOption(Option{Type: 1, Payload: []byte{1}}))
	c := md.Clone()
	c.SetOpID([]byte{2, 2, 2, 2})
	c.SetSeverity(SeverityDebug)
	assert.Equal(t, "01010101", md.OpIDString())
	assert.Len(t, md.Options(), 1)
	assert.False(t, c.Equal(md))
}

func TestFastOpIDMatchesParse(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		tl := []int{4, 8, 12, 20}[r.Intn(4)]
		ol := []int{4, 8}[r.Intn(2)]
		tid := make([]byte, tl)
		r.Read(tid)
		op := make([]byte, ol)
		r.Read(op)
		md := New(TaskIDFromBytes(tid), op)
		for j := r.Intn(3); j > 0; j-- {
			p := make([]byte, r.Intn(4))
			r.Read(p)
			require.NoError(t, md.AddOption(Option{Type: byte(r.Intn(256)), Payload: p}))
		}
		s := md.String()
		if r.Intn(2) == 0 {
			s = strings.ToLower(s)
		}
		require.Equal(t, Parse(s).OpIDString(), FastOpID(s), s)
	}
}

func TestFastOpIDMalformed(t *testing.T) {
	for _, s := range []string{"", "1", "10", "1000000000000000", "ZZ00000000000000000000", "130000000000000000"} {
		assert.Equal(t, "00000000", FastOpID(s), s)
	}
}

// Package metax implements the X-Trace identity codec: task ids, operation
// ids, option fields and the packed Metadata record with its hex text form.
//
// Packed layout, flags byte first:
//
//	bits 0-1  task id length class (00=4, 01=8, 10=12, 11=20 bytes)
//	bit  2    options follow
//	bit  3    op id is 8 bytes (otherwise 4)
//	bits 4-7  format version
//
// followed by the task id, the op id and, when bit 2 is set, one byte with the
// total option length and the option records.
//
// Decoding never fails loudly: malformed input produces the invalid sentinel,
// and callers check Valid.
package metax

import (
	"bytes"
	"fmt"

	"github.com/imattdu/xtrace/errorx"
)

const (
	Version = 1

	flagTaskIDMask = 0x03
	flagOptions    = 0x04
	flagOpID8      = 0x08
	versionShift   = 4

	MinPackedLen = 9
	MaxPackedLen = 1024

	// maxOptionBytes is bounded by the single total-length byte.
	maxOptionBytes = 255
)

var taskIDLengths = [4]int{4, 8, 12, 20}

func taskIDLengthOf(flags byte) int { return taskIDLengths[flags&flagTaskIDMask] }

func opIDLengthOf(flags byte) int {
	if flags&flagOpID8 != 0 {
		return 8
	}
	return 4
}

func taskIDClass(n int) byte {
	switch n {
	case 8:
		return 0x01
	case 12:
		return 0x02
	case 20:
		return 0x03
	}
	return 0x00
}

// ValidOpIDLength reports whether n is a legal op id length.
func ValidOpIDLength(n int) bool { return n == 4 || n == 8 }

// Metadata is the identity of one event: task id, op id and options.
// The zero value is invalid.
type Metadata struct {
	taskID  TaskID
	opID    []byte
	options []Option
}

// Invalid returns the invalid sentinel: all-zero 4-byte task id and op id.
func Invalid() Metadata {
	return Metadata{taskID: InvalidTaskID(), opID: make([]byte, 4)}
}

// New builds a Metadata from a task id and a 4 or 8 byte op id. A bad op id
// length or task id yields the invalid sentinel.
func New(taskID TaskID, opID []byte) Metadata {
	if !ValidTaskIDLength(taskID.Len()) || !ValidOpIDLength(len(opID)) {
		return Invalid()
	}
	return Metadata{taskID: TaskID{id: bytes.Clone(taskID.id)}, opID: bytes.Clone(opID)}
}

// Valid reports whether the task id has a non-zero byte. The op id plays no
// part in validity.
func (m Metadata) Valid() bool {
	return m.taskID.Len() > 0 && !m.taskID.IsZero()
}

func (m Metadata) TaskID() TaskID { return m.normalized().taskID }

func (m Metadata) OpID() []byte { return bytes.Clone(m.normalized().opID) }

func (m Metadata) OpIDLength() int { return len(m.normalized().opID) }

func (m Metadata) OpIDString() string { return EncodeHex(m.normalized().opID) }

// SetOpID replaces the op id. Lengths other than 4 or 8 are ignored.
func (m *Metadata) SetOpID(op []byte) bool {
	if !ValidOpIDLength(len(op)) {
		return false
	}
	m.opID = bytes.Clone(op)
	return true
}

// Options returns a copy of the option list, in wire order.
func (m Metadata) Options() []Option {
	if len(m.options) == 0 {
		return nil
	}
	out := make([]Option, len(m.options))
	for i, o := range m.options {
		out[i] = o.clone()
	}
	return out
}

// AddOption appends o. It fails when the options would no longer fit the
// one-byte total length.
func (m *Metadata) AddOption(o Option) error {
	if len(o.Payload) > MaxOptionPayload {
		return errorx.New(errorx.ErrMalformedMetadata,
			errorx.WithMessage(fmt.Sprintf("option payload of %d bytes exceeds %d", len(o.Payload), MaxOptionPayload)))
	}
	if m.optionBytes()+o.Size() > maxOptionBytes {
		return errorx.New(errorx.ErrMalformedMetadata,
			errorx.WithMessage("options exceed 255 bytes"))
	}
	m.options = append(m.options, o.clone())
	return nil
}

func (m Metadata) optionBytes() int {
	n := 0
	for _, o := range m.options {
		n += o.Size()
	}
	return n
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	c := Metadata{
		taskID: TaskID{id: bytes.Clone(m.taskID.id)},
		opID:   bytes.Clone(m.opID),
	}
	for _, o := range m.options {
		c.options = append(c.options, o.clone())
	}
	return c
}

func (m Metadata) Equal(o Metadata) bool {
	a, b := m.normalized(), o.normalized()
	if !a.taskID.Equal(b.taskID) || !bytes.Equal(a.opID, b.opID) || len(a.options) != len(b.options) {
		return false
	}
	for i := range a.options {
		if !a.options[i].Equal(b.options[i]) {
			return false
		}
	}
	return true
}

// normalized maps the zero value onto the invalid sentinel.
func (m Metadata) normalized() Metadata {
	if !ValidTaskIDLength(m.taskID.Len()) || !ValidOpIDLength(len(m.opID)) {
		return Invalid()
	}
	return m
}

// -------------------- encoding --------------------

// Size is the number of bytes Pack returns.
func (m Metadata) Size() int {
	m = m.normalized()
	n := 1 + m.taskID.Len() + len(m.opID)
	if len(m.options) > 0 {
		n += 1 + m.optionBytes()
	}
	return n
}

// Pack encodes the metadata in the wire layout.
func (m Metadata) Pack() []byte {
	m = m.normalized()
	buf := make([]byte, 0, m.Size())

	flags := taskIDClass(m.taskID.Len()) | Version<<versionShift
	if len(m.options) > 0 {
		flags |= flagOptions
	}
	if len(m.opID) == 8 {
		flags |= flagOpID8
	}
	buf = append(buf, flags)
	buf = append(buf, m.taskID.id...)
	buf = append(buf, m.opID...)

	if len(m.options) > 0 {
		buf = append(buf, byte(m.optionBytes()))
		for _, o := range m.options {
			buf = append(buf, o.Pack()...)
		}
	}
	return buf
}

func (m Metadata) String() string { return EncodeHex(m.Pack()) }


// Unpack decodes length bytes of buf starting at offset. Any inconsistency
// returns the invalid sentinel. Truncated option records end option parsing
// without invalidating what was read so far.
func Unpack(buf []byte, offset, length int) Metadata {
	if buf == nil || offset < 0 || length < MinPackedLen {
		return Invalid()
	}
	if offset > len(buf) || len(buf)-offset < length {
		return Invalid()
	}

	flags := buf[offset]
	taskLen := taskIDLengthOf(flags)
	opLen := opIDLengthOf(flags)
	if 1+taskLen+opLen > length {
		return Invalid()
	}

	pos := offset + 1
	md := Metadata{
		taskID: TaskID{id: bytes.Clone(buf[pos : pos+taskLen])},
		opID:   bytes.Clone(buf[pos+taskLen : pos+taskLen+opLen]),
	}
	pos += taskLen + opLen

	if flags&flagOptions == 0 {
		return md
	}
	end := offset + length
	if pos >= end {
		return Invalid()
	}

	total := int(buf[pos])
	pos++
	optEnd := pos + total
	if optEnd > end {
		optEnd = end
	}
	for optEnd-pos >= 2 {
		typ, n := buf[pos], int(buf[pos+1])
		if pos+2+n > optEnd {
			break
		}
		o := Option{Type: typ}
		if n > 0 {
			o.Payload = bytes.Clone(buf[pos+2 : pos+2+n])
		}
		md.options = append(md.options, o)
		pos += 2 + n
	}
	return md
}

// FromBytes decodes a whole buffer.
func FromBytes(b []byte) Metadata { return Unpack(b, 0, len(b)) }

// Parse decodes the hex text form. Case is ignored.
func Parse(s string) Metadata {
	b, err := DecodeHex(s)
	if err != nil {
		return Invalid()
	}
	return FromBytes(b)
}

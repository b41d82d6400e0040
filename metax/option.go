package metax

import (
	"bytes"
	"fmt"

	"github.com/imattdu/xtrace/errorx"
)

const (
	OptionNop      byte = 0x00
	OptionSeverity byte = 0xCE

	// MaxOptionPayload is bounded by the single length byte of the record.
	MaxOptionPayload = 255
)

// Option is an extension field carried with Metadata on the wire:
// type(1) length(1) payload(length).
type Option struct {
	Type    byte
	Payload []byte
}

// NewOption builds an option, rejecting payloads that cannot be encoded.
func NewOption(typ byte, payload []byte) (Option, error) {
	if len(payload) > MaxOptionPayload {
		return Option{Type: OptionNop}, errorx.New(errorx.ErrMalformedMetadata,
			errorx.WithMessage(fmt.Sprintf("option payload of %d bytes exceeds %d", len(payload), MaxOptionPayload)))
	}
	return Option{Type: typ, Payload: bytes.Clone(payload)}, nil
}

// ParseOption decodes the hex form produced by Option.String.
func ParseOption(s string) (Option, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return Option{}, errorx.Wrap(err, errorx.ErrMalformedMetadata)
	}
	if len(b) < 2 || int(b[1]) != len(b)-2 {
		return Option{}, errorx.New(errorx.ErrMalformedMetadata,
			errorx.WithMessage(fmt.Sprintf("bad option record %q", s)))
	}
	return Option{Type: b[0], Payload: bytes.Clone(b[2:])}, nil
}

// Pack encodes the option record. An empty payload still emits a
// zero-length record.
func (o Option) Pack() []byte {
	buf := make([]byte, 0, 2+len(o.Payload))
	buf = append(buf, o.Type, byte(len(o.Payload)))
	return append(buf, o.Payload...)
}

func (o Option) Size() int { return 2 + len(o.Payload) }

func (o Option) Equal(p Option) bool {
	return o.Type == p.Type && bytes.Equal(o.Payload, p.Payload)
}

func (o Option) String() string { return EncodeHex(o.Pack()) }

func (o Option) clone() Option {
	return Option{Type: o.Type, Payload: bytes.Clone(o.Payload)}
}

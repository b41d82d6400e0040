package metax

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/imattdu/xtrace/errorx"
)

// maxFramedLen caps the length prefix accepted by ReadMetadata.
const maxFramedLen = 4096

// WriteMetadata writes m to w as a 4-byte big-endian length followed by the
// packed bytes. This is the framing used to hand metadata across a raw
// stream connection.
func WriteMetadata(w io.Writer, m Metadata) error {
	packed := m.Pack()
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(packed)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errorx.Wrap(err, errorx.ErrMalformedMetadata)
	}
	if _, err := w.Write(packed); err != nil {
		return errorx.Wrap(err, errorx.ErrMalformedMetadata)
	}
	return nil
}

// ReadMetadata reads one framed metadata record from r. A length outside
// (0, 4096] is an error; the payload itself is decoded leniently, so a
// malformed record yields the invalid sentinel rather than an error.
func ReadMetadata(r io.Reader) (Metadata, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Invalid(), errorx.Wrap(err, errorx.ErrMalformedMetadata)
	}
	n := int32(binary.BigEndian.Uint32(hdr[:]))
	if n <= 0 || n > maxFramedLen {
		return Invalid(), errorx.New(errorx.ErrMalformedMetadata,
			errorx.WithMessage(fmt.Sprintf("framed metadata length %d out of range", n)))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Invalid(), errorx.Wrap(err, errorx.ErrMalformedMetadata)
	}
	return FromBytes(buf), nil
}

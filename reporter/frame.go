package reporter

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/imattdu/xtrace/errorx"
)

// MaxFrameSize bounds one framed report on a stream connection.
const MaxFrameSize = 1 << 20

// WriteFrame writes report as a 4-byte big-endian length and UTF-8 bytes.
func WriteFrame(w io.Writer, report string) error {
	buf := make([]byte, 4+len(report))
	binary.BigEndian.PutUint32(buf, uint32(len(report)))
	copy(buf[4:], report)
	if _, err := w.Write(buf); err != nil {
		return errorx.Wrap(err, errorx.ErrSink, errorx.WithService(errorx.ServiceReporter))
	}
	return nil
}

// ReadFrame reads one framed report. io.EOF is returned as is at a clean
// frame boundary.
func ReadFrame(r io.Reader) (string, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", err
	}
	n := int32(binary.BigEndian.Uint32(hdr[:]))
	if n < 0 || n > MaxFrameSize {
		return "", errorx.New(errorx.ErrMalformedReport,
			errorx.WithMessage(fmt.Sprintf("frame length %d out of range", n)))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errorx.Wrap(err, errorx.ErrMalformedReport)
	}
	return string(buf), nil
}

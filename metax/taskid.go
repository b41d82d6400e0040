package metax

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/imattdu/xtrace/errorx"
)

// TaskID identifies one traced task. It is 4, 8, 12 or 20 bytes long; any
// other length collapses to the all-zero 4-byte invalid id.
type TaskID struct {
	id []byte
}

// ValidTaskIDLength reports whether n is a legal task id length.
func ValidTaskIDLength(n int) bool {
	switch n {
	case 4, 8, 12, 20:
		return true
	}
	return false
}

// InvalidTaskID returns the distinguished all-zero 4-byte task id.
func InvalidTaskID() TaskID {
	return TaskID{id: make([]byte, 4)}
}

// NewTaskID returns a random task id of the given length.
func NewTaskID(length int) (TaskID, error) {
	return NewTaskIDWithPrefix(nil, length)
}

// NewTaskIDWithPrefix returns a task id of the given length that starts with
// prefix and is random thereafter.
func NewTaskIDWithPrefix(prefix []byte, length int) (TaskID, error) {
	if !ValidTaskIDLength(length) {
		return InvalidTaskID(), errorx.New(errorx.ErrMalformedMetadata,
			errorx.WithMessage(fmt.Sprintf("invalid task id length %d", length)))
	}
	if len(prefix) > length {
		return InvalidTaskID(), errorx.New(errorx.ErrMalformedMetadata,
			errorx.WithMessage(fmt.Sprintf("prefix of %d bytes exceeds task id length %d", len(prefix), length)))
	}
	id := make([]byte, length)
	copy(id, prefix)
	if _, err := rand.Read(id[len(prefix):]); err != nil {
		return InvalidTaskID(), errorx.Wrap(err, errorx.ErrDefault)
	}
	return TaskID{id: id}, nil
}

// TaskIDFromBytes copies b into a task id, or returns the invalid id when
// len(b) is not a legal length.
func TaskIDFromBytes(b []byte) TaskID {
	if !ValidTaskIDLength(len(b)) {
		return InvalidTaskID()
	}
	return TaskID{id: bytes.Clone(b)}
}

// ParseTaskID decodes the hex form of a task id. Malformed input yields the
// invalid id.
func ParseTaskID(s string) TaskID {
	b, err := DecodeHex(s)
	if err != nil {
		return InvalidTaskID()
	}
	return TaskIDFromBytes(b)
}

func (t TaskID) Bytes() []byte { return bytes.Clone(t.id) }

func (t TaskID) Len() int { return len(t.id) }

// IsZero reports whether every byte of the id is zero.
func (t TaskID) IsZero() bool {
	for _, b := range t.id {
		if b != 0 {
			return false
		}
	}
	return true
}

func (t TaskID) Equal(o TaskID) bool { return bytes.Equal(t.id, o.id) }

func (t TaskID) String() string {
	if len(t.id) == 0 {
		return EncodeHex(InvalidTaskID().id)
	}
	return EncodeHex(t.id)
}

package metax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskID(t *testing.T) {
	for _, n := range []int{4, 8, 12, 20} {
		id, err := NewTaskID(n)
		require.NoError(t, err)
		assert.Equal(t, n, id.Len())
		assert.Len(t, id.String(), 2*n)
	}

	_, err := NewTaskID(5)
	assert.Error(t, err)
}

func TestNewTaskIDWithPrefix(t *testing.T) {
	id, err := NewTaskIDWithPrefix([]byte{0xDE, 0xAD}, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, id.Bytes()[:2])

	_, err = NewTaskIDWithPrefix(make([]byte, 9), 8)
	assert.Error(t, err)
}

func TestTaskIDFromBytes(t *testing.T) {
	assert.True(t, TaskIDFromBytes([]byte{1, 2, 3}).Equal(InvalidTaskID()))
	assert.True(t, InvalidTaskID().IsZero())

	id := TaskIDFromBytes([]byte{0xAB, 0xCD, 0xEF, 0x01})
	assert.Equal(t, "ABCDEF01", id.String())
	assert.True(t, ParseTaskID("abcdef01").Equal(id))
	assert.True(t, ParseTaskID("xyz").Equal(InvalidTaskID()))
}

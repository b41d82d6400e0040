package jsonx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	TaskID string   `json:"task_id"`
	Tags   []string `json:"tags,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := sample{TaskID: "0A0B0C0D", Tags: []string{"a", "b"}}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id":"0A0B0C0D","tags":["a","b"]}`, string(data))

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sample{TaskID: "X"}))

	var out sample
	require.NoError(t, Decode(&buf, &out))
	assert.Equal(t, "X", out.TaskID)
	assert.Nil(t, out.Tags)
}

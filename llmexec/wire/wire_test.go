package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFieldsOnEmptyBody(t *testing.T) {
	out, err := MergeFields(nil, []string{"a", "b"}, nil, true, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "a", Get(out, "messages.0").String())
	assert.True(t, Get(out, "stream").Bool())
	assert.Equal(t, 0.7, Get(out, "temperature").Float())
	assert.False(t, Get(out, "tools").Exists())
}

func TestMergeFieldsPreservesExistingBody(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","top_p":0.9}`)
	out, err := MergeFields(body, []string{"hi"}, []string{"t1"}, false, 0)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", Get(out, "model").String())
	assert.Equal(t, 0.9, Get(out, "top_p").Float())
	assert.Equal(t, "t1", Get(out, "tools.0").String())
}

func TestUnmarshalInto(t *testing.T) {
	var dest struct {
		Model string `json:"model"`
	}
	require.NoError(t, UnmarshalInto([]byte(`{"model":"gpt-4o"}`), &dest))
	assert.Equal(t, "gpt-4o", dest.Model)
}

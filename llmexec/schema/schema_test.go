package schema

import (
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"

	"agentgraph"
)

func TestFromFieldSchemaMarksArrayFields(t *testing.T) {
	d := FromFieldSchema(map[string]agentgraph.FieldSchema{
		"query": {Label: "search query"},
		"tags":  {Array: true},
	})
	assert.Equal(t, jsonschema.Object, d.Type)
	assert.Equal(t, jsonschema.String, d.Properties["query"].Type)
	assert.Equal(t, "search query", d.Properties["query"].Description)
	assert.Equal(t, jsonschema.Array, d.Properties["tags"].Type)
	assert.ElementsMatch(t, []string{"query", "tags"}, d.Required)
}

func TestFromToolDescriptor(t *testing.T) {
	d := FromToolDescriptor(agentgraph.ToolDescriptor{
		Parameters: map[string]agentgraph.FieldSchema{"x": {}},
	})
	_, ok := d.Properties["x"]
	assert.True(t, ok)
}

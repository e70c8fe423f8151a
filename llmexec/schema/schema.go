// Package schema generates go-openai JSON Schema definitions for tool
// parameters and structured-output types. The core routing engine
// deliberately leaves schema-generation-library choice out of its own
// surface; this package is the reference answer for the llmexec domain
// stack.
package schema

import (
	"github.com/sashabaranov/go-openai/jsonschema"

	"agentgraph"
)

// FromFieldSchema converts a node's declared map[string]FieldSchema into a
// jsonschema.Definition object, treating every field as required since the
// core has no concept of optional fields — binding simply never delivers a
// value for a field nothing produces.
func FromFieldSchema(fields map[string]agentgraph.FieldSchema) jsonschema.Definition {
	props := make(map[string]jsonschema.Definition, len(fields))
	required := make([]string, 0, len(fields))
	for name, f := range fields {
		d := jsonschema.Definition{Type: jsonschema.String}
		if f.Array {
			d = jsonschema.Definition{
				Type:  jsonschema.Array,
				Items: &jsonschema.Definition{Type: jsonschema.String},
			}
		}
		if f.Label != "" {
			d.Description = f.Label
		}
		props[name] = d
		required = append(required, name)
	}
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: props,
		Required:   required,
	}
}

// FromToolDescriptor builds a tool's Parameters schema straight from the
// GraphNode ToolDescriptor a schema provider resolves to.
func FromToolDescriptor(d agentgraph.ToolDescriptor) jsonschema.Definition {
	return FromFieldSchema(d.Parameters)
}

// ForType generates a JSON Schema for a Go struct used as a
// structured-output target.
func ForType(v any) (jsonschema.Definition, error) {
	return jsonschema.GenerateSchemaForType(v)
}

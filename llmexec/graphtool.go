package llmexec

import (
	"context"
	"encoding/json"

	"agentgraph"
	"agentgraph/llmexec/schema"
)

// GraphTool adapts a schema-bound GraphNode into a Tool the tool-call loop
// can invoke: calling the tool re-enters the graph through the node's own
// Invoke entry point as a fresh run scoped to that single call.
type GraphTool struct {
	node *agentgraph.GraphNode
	desc agentgraph.ToolDescriptor
}

// NewGraphTool wraps node, reading its cached ToolDescriptor once.
func NewGraphTool(node *agentgraph.GraphNode) *GraphTool {
	return &GraphTool{node: node, desc: node.Schema().Descriptor()}
}

func (t *GraphTool) ParseParams(arguments map[string]any) (any, error) {
	return arguments, nil
}

func (t *GraphTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.desc.Name,
		Description: t.desc.Description,
		Parameters:  schema.FromToolDescriptor(t.desc),
	}
}

// Call invokes the wrapped node as a fresh, independent run and marshals
// its accumulated output back to the model as a JSON string.
func (t *GraphTool) Call(ctx context.Context, params any) (string, error) {
	args, _ := params.(map[string]any)
	_, resCh := t.node.Invoke(ctx, agentgraph.Input(args))
	res := <-resCh
	if res.Err != nil {
		return "", res.Err
	}
	out, err := json.Marshal(res.Output)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

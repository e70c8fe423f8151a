package llmexec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgraph"
)

func TestGraphToolCallsNodeAsFreshRun(t *testing.T) {
	agent := agentgraph.NewGraphAgent()
	double, err := agent.AddNode("double", agentgraph.NewFuncNode(agentgraph.FuncNodeSpec{
		ID:      "double",
		Name:    "double",
		Version: "v1",
		Input:   map[string]agentgraph.FieldSchema{"n": {}},
		Output:  map[string]agentgraph.FieldSchema{"n": {}},
		Run: func(ctx *agentgraph.Context, input agentgraph.Input) <-chan agentgraph.Yield {
			ch := make(chan agentgraph.Yield, 1)
			n, _ := input["n"].(float64)
			ch <- agentgraph.Yield{Output: agentgraph.Output{"n": n * 2}}
			close(ch)
			return ch
		},
	}), nil)
	require.NoError(t, err)

	tool := NewGraphTool(double)
	assert.Equal(t, "double", tool.Definition().Name)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := tool.Call(ctx, map[string]any{"n": float64(21)})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, float64(42), decoded["n"])
}

func TestGraphToolSurfacesRunFailure(t *testing.T) {
	agent := agentgraph.NewGraphAgent()
	failing, err := agent.AddNode("failing", agentgraph.NewFuncNode(agentgraph.FuncNodeSpec{
		ID:      "failing",
		Name:    "failing",
		Version: "v1",
		Input:   map[string]agentgraph.FieldSchema{"n": {}},
		Output:  map[string]agentgraph.FieldSchema{"n": {}},
		Run: func(ctx *agentgraph.Context, input agentgraph.Input) <-chan agentgraph.Yield {
			ch := make(chan agentgraph.Yield, 1)
			ch <- agentgraph.Yield{Err: assert.AnError}
			close(ch)
			return ch
		},
	}), nil)
	require.NoError(t, err)

	tool := NewGraphTool(failing)
	_, err = tool.Call(context.Background(), map[string]any{"n": float64(1)})
	require.Error(t, err)
}

package llmexec

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgraph"
)

func TestExecutorNodeRunsTemplateThroughWire(t *testing.T) {
	client := &fakeClient{responses: []openai.ChatCompletionResponse{
		{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "templated"}}}},
	}}

	meta := &RequestMetadata{
		Model:   "gpt-4o",
		Request: &RequestTemplate{Body: map[string]any{"temperature": 0.2}},
	}
	agent := agentgraph.NewGraphAgent(agentgraph.WithDependency(MetadataKey, meta))
	exec, err := agent.AddNode("exec", NewExecutorNode("exec", client), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, resCh := exec.Invoke(ctx, agentgraph.Input{
		"messages": []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	})
	res := <-resCh
	require.NoError(t, res.Err)
	resp, ok := res.Output["response"].(openai.ChatCompletionResponse)
	require.True(t, ok)
	assert.Equal(t, "templated", resp.Choices[0].Message.Content)
}

func TestExecutorNodeUsesResolvedCustomExecutor(t *testing.T) {
	meta := &RequestMetadata{Model: "gpt-4o", Request: "custom"}
	custom := &stubCustomExecutor{out: agentgraph.Output{"response": "custom-handled"}}
	agent := agentgraph.NewGraphAgent(
		agentgraph.WithDependency(MetadataKey, meta),
		agentgraph.WithDependency("core.llm.custom.executor", custom),
	)
	exec, err := agent.AddNode("exec", NewExecutorNode("exec", &fakeClient{}), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, resCh := exec.Invoke(ctx, agentgraph.Input{"messages": []openai.ChatCompletionMessage{}})
	res := <-resCh
	require.NoError(t, res.Err)
	assert.Equal(t, "custom-handled", res.Output["response"])
	assert.True(t, custom.called)
}

func TestExecutorNodeWithoutMetadataFails(t *testing.T) {
	agent := agentgraph.NewGraphAgent()
	exec, err := agent.AddNode("exec", NewExecutorNode("exec", &fakeClient{}), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, resCh := exec.Invoke(ctx, agentgraph.Input{"messages": []openai.ChatCompletionMessage{}})
	res := <-resCh
	require.Error(t, res.Err)
}

type stubCustomExecutor struct {
	out    agentgraph.Output
	called bool
}

func (s *stubCustomExecutor) Execute(ctx context.Context, input agentgraph.Input) (agentgraph.Output, error) {
	s.called = true
	return s.out, nil
}

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

func TestChatCompletionNodeRunsThroughGraphAgent(t *testing.T) {
	client := &fakeClient{responses: []openai.ChatCompletionResponse{
		{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "hello there"}}}},
	}}

	agent := agentgraph.NewGraphAgent()
	chat, err := agent.AddNode("chat", NewChatCompletionNode("chat", client), nil)
	require.NoError(t, err)

	_, resCh := chat.Invoke(context.Background(), agentgraph.Input{
		"request": openai.ChatCompletionRequest{Model: "gpt-4o"},
	})
	select {
	case res := <-resCh:
		require.NoError(t, res.Err)
		resp, ok := res.Output["response"].(openai.ChatCompletionResponse)
		require.True(t, ok)
		assert.Equal(t, "hello there", resp.Choices[0].Message.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat node result")
	}
}

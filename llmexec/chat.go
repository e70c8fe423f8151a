package llmexec

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"agentgraph"
)

// chatConfig collects the options a chat-capable node was constructed with.
type chatConfig struct {
	tools []Tool
}

// ChatOption configures NewChatCompletionNode, NewStructuredChatNode, and
// NewExecutorNode.
type ChatOption func(*chatConfig)

var errMissingRequest = errors.New("llmexec: input field \"request\" is not an openai.ChatCompletionRequest")

// NewChatCompletionNode builds an AgentNode wrapping a single
// CreateChatCompletion call, with an optional tool-call loop. Its Input is
// {"request": openai.ChatCompletionRequest}; its Output is {"response":
// openai.ChatCompletionResponse} or {"error": string} on a node-level
// failure that a downstream node chose to handle rather than abort the run.
func NewChatCompletionNode(id string, client ChatClient, opts ...ChatOption) agentgraph.AgentNode {
	cfg := chatConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	return agentgraph.NewFuncNode(agentgraph.FuncNodeSpec{
		ID:      id,
		Name:    id,
		Version: "v1",
		Input:   map[string]agentgraph.FieldSchema{"request": {}},
		Output:  map[string]agentgraph.FieldSchema{"response": {}, "error": {}},
		Run: func(ctx *agentgraph.Context, input agentgraph.Input) <-chan agentgraph.Yield {
			ch := make(chan agentgraph.Yield, 1)
			go func() {
				defer close(ch)
				req, ok := input["request"].(openai.ChatCompletionRequest)
				if !ok {
					ch <- agentgraph.Yield{Err: errMissingRequest}
					return
				}
				resp, err := runToolLoop(ctx.Ctx, client, req, cfg.tools)
				if err != nil {
					ch <- agentgraph.Yield{Output: agentgraph.Output{"error": err.Error()}}
					return
				}
				ctx.SetGlobalState("core.llm.response.status", "completed")
				ch <- agentgraph.Yield{Output: agentgraph.Output{"response": resp}}
			}()
			return ch
		},
	})
}

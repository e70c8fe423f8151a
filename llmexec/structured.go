package llmexec

import (
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"agentgraph"
)

var (
	errDuplicatedResponseFormat = errors.New("llmexec: response format already provided")
	errNoContentFromLLM         = errors.New("llmexec: no content received from LLM response")
)

// NewStructuredChatNode builds a chat node that enforces a JSON Schema
// derived from SOut on the model's response and unmarshals the result into
// SOut. Its Output is {"result": SOut} on success.
func NewStructuredChatNode[SOut any](id string, client ChatClient, opts ...ChatOption) agentgraph.AgentNode {
	cfg := chatConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	return agentgraph.NewFuncNode(agentgraph.FuncNodeSpec{
		ID:      id,
		Name:    id,
		Version: "v1",
		Input:   map[string]agentgraph.FieldSchema{"request": {}},
		Output:  map[string]agentgraph.FieldSchema{"result": {}, "error": {}},
		Run: func(ctx *agentgraph.Context, input agentgraph.Input) <-chan agentgraph.Yield {
			ch := make(chan agentgraph.Yield, 1)
			go func() {
				defer close(ch)

				req, ok := input["request"].(openai.ChatCompletionRequest)
				if !ok {
					ch <- agentgraph.Yield{Err: errMissingRequest}
					return
				}
				if req.ResponseFormat != nil {
					ch <- agentgraph.Yield{Err: errDuplicatedResponseFormat}
					return
				}

				var sOut SOut
				sch, err := jsonschema.GenerateSchemaForType(sOut)
				if err != nil {
					ch <- agentgraph.Yield{Err: fmt.Errorf("llmexec: generating schema for %T: %w", sOut, err)}
					return
				}
				req.ResponseFormat = &openai.ChatCompletionResponseFormat{
					Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
					JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
						Name:   "output",
						Schema: sch,
					},
				}

				resp, err := runToolLoop(ctx.Ctx, client, req, cfg.tools)
				if err != nil {
					ch <- agentgraph.Yield{Output: agentgraph.Output{"error": err.Error()}}
					return
				}
				if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
					ch <- agentgraph.Yield{Err: errNoContentFromLLM}
					return
				}
				if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &sOut); err != nil {
					ch <- agentgraph.Yield{Err: fmt.Errorf("llmexec: unmarshaling structured response into %T: %w", sOut, err)}
					return
				}
				ctx.SetGlobalState("core.llm.response.status", "completed")
				ch <- agentgraph.Yield{Output: agentgraph.Output{"result": sOut}}
			}()
			return ch
		},
	})
}

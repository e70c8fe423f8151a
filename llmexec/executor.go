package llmexec

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"agentgraph"
	"agentgraph/llmexec/wire"
)

// CustomExecutor is resolved via Context.Resolve("core.llm.custom.executor")
// when a node's RequestMetadata.Request is the literal string "custom":
// the node author takes over request construction entirely, and the
// runtime only hands through the accumulated Input.
type CustomExecutor interface {
	Execute(ctx context.Context, input agentgraph.Input) (agentgraph.Output, error)
}

// NewExecutorNode builds the reference executor: it resolves
// RequestMetadata for the node, composes a request via llmexec/wire, and
// either hands off to a resolved CustomExecutor or performs the call
// itself through the go-openai client.
func NewExecutorNode(id string, client ChatClient, opts ...ChatOption) agentgraph.AgentNode {
	cfg := chatConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	return agentgraph.NewFuncNode(agentgraph.FuncNodeSpec{
		ID:      id,
		Name:    id,
		Version: "v1",
		Input:   map[string]agentgraph.FieldSchema{"messages": {Array: true}},
		Output:  map[string]agentgraph.FieldSchema{"response": {}, "error": {}},
		Run: func(ctx *agentgraph.Context, input agentgraph.Input) <-chan agentgraph.Yield {
			ch := make(chan agentgraph.Yield, 1)
			go func() {
				defer close(ch)

				metaVal, ok := ctx.Resolve(MetadataKey)
				if !ok {
					ch <- agentgraph.Yield{Err: fmt.Errorf("llmexec: %s not resolvable", MetadataKey)}
					return
				}
				meta, ok := metaVal.(*RequestMetadata)
				if !ok {
					ch <- agentgraph.Yield{Err: fmt.Errorf("llmexec: %s resolved to unexpected type %T", MetadataKey, metaVal)}
					return
				}

				if s, isCustom := meta.Request.(string); isCustom && s == "custom" {
					out, err := runCustom(ctx, input)
					if err != nil {
						ch <- agentgraph.Yield{Err: err}
						return
					}
					ch <- agentgraph.Yield{Output: out}
					return
				}

				tmpl, ok := meta.Request.(*RequestTemplate)
				if !ok {
					ch <- agentgraph.Yield{Err: fmt.Errorf("llmexec: unsupported request metadata %T", meta.Request)}
					return
				}

				resp, err := runTemplate(ctx, client, meta.Model, tmpl, input["messages"], cfg.tools)
				if err != nil {
					ctx.SetGlobalState("core.llm.response.status", "error")
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

func runCustom(ctx *agentgraph.Context, input agentgraph.Input) (agentgraph.Output, error) {
	exec, ok := ctx.Resolve("core.llm.custom.executor")
	if !ok {
		return nil, agentgraph.ErrCustomRequestNoExecutor
	}
	custom, ok := exec.(CustomExecutor)
	if !ok {
		return nil, agentgraph.ErrCustomRequestNoExecutor
	}
	return custom.Execute(ctx.Ctx, input)
}

func runTemplate(ctx *agentgraph.Context, client ChatClient, model string, tmpl *RequestTemplate, messages any, tools []Tool) (openai.ChatCompletionResponse, error) {
	bodyJSON, err := json.Marshal(tmpl.Body)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	merged, err := wire.MergeFields(bodyJSON, messages, nil, false, 0)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	ctx.SetGlobalState("core.llm.request.body", merged)

	var req openai.ChatCompletionRequest
	if err := wire.UnmarshalInto(merged, &req); err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	req.Model = model

	return runToolLoop(ctx.Ctx, client, req, tools)
}

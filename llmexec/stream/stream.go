// Package stream implements the SSE streaming path for a streaming LLM
// completion. It uses github.com/openai/openai-go rather than
// sashabaranov/go-openai because ssestream.Stream is only exposed by that
// client.
package stream

import (
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"agentgraph"
)

var errMissingParams = errors.New("stream: input field \"params\" is not an openai.CompletionNewParams")

// NewStreamingCompletionNode builds an AgentNode that yields one partial
// Output per SSE chunk carrying text ({"delta": token}; chunks with no text
// are skipped) and a final Output carrying the fully assembled text
// ({"text": full}).
func NewStreamingCompletionNode(id string, client *openai.Client) agentgraph.AgentNode {
	return agentgraph.NewFuncNode(agentgraph.FuncNodeSpec{
		ID:      id,
		Name:    id,
		Version: "v1",
		Input:   map[string]agentgraph.FieldSchema{"params": {}},
		Output:  map[string]agentgraph.FieldSchema{"delta": {}, "text": {}, "error": {}},
		Run: func(ctx *agentgraph.Context, input agentgraph.Input) <-chan agentgraph.Yield {
			ch := make(chan agentgraph.Yield)
			go func() {
				defer close(ch)
				params, ok := input["params"].(openai.CompletionNewParams)
				if !ok {
					ch <- agentgraph.Yield{Err: errMissingParams}
					return
				}

				strm := client.Completions.NewStreaming(ctx.Ctx, params)
				defer strm.Close()

				var full strings.Builder
				for strm.Next() {
					token := tokenFrom(strm)
					if token == "" {
						continue
					}
					full.WriteString(token)
					ch <- agentgraph.Yield{Output: agentgraph.Output{"delta": token}}
					ctx.Render("token", token)
				}
				if err := strm.Err(); err != nil {
					ch <- agentgraph.Yield{Err: err}
					return
				}
				ch <- agentgraph.Yield{Output: agentgraph.Output{"text": full.String()}}
			}()
			return ch
		},
	})
}

func tokenFrom(strm *ssestream.Stream[openai.Completion]) string {
	evt := strm.Current()
	if len(evt.Choices) == 0 {
		return ""
	}
	return evt.Choices[0].Text
}

// Package llmexec is the reference LLM executor: it implements the wire
// protocol that node code reaches through
// Context.Resolve("core.llm.model.metadata") rather than baking an HTTP
// client into the core routing engine.
package llmexec

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// MetadataKey is the well-known Context.Resolve key a chat-capable node
// uses to find its RequestMetadata.
const MetadataKey = "core.llm.model.metadata"

// RequestMetadata is the executor-facing contract: either Request is the
// literal string "custom" (the node must build its own request, handled by
// a resolved CustomExecutor) or it is a *RequestTemplate the runtime
// composes with the conversation.
type RequestMetadata struct {
	Model   string
	Request any
}

// RequestTemplate carries the literal pieces of a non-custom request; Body
// is merged with {messages, tools?, stream, temperature} by llmexec/wire.
type RequestTemplate struct {
	URL     string
	Headers map[string]string
	Body    map[string]any
}

// ChatClient is the subset of the go-openai client this package depends
// on. Breaking this out as an interface lets callers substitute a mock in
// tests without the real *openai.Client.
type ChatClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TransportError wraps a transport/IO failure from the underlying HTTP
// client.
type TransportError struct {
	Upstream error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llmexec: transport failure: %v", e.Upstream)
}

func (e *TransportError) Unwrap() error { return e.Upstream }

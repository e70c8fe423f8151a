package llmexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"agentgraph/rlog"
)

// maxToolIterations bounds the LLM<->tool round trip.
const maxToolIterations = 10

var (
	ErrToolsAlreadyDefined = errors.New("llmexec: tools already defined in the request")
	ErrUnknownTool         = errors.New("llmexec: openai responded with an unknown tool function name")
)

// Tool is a function callable by the model.
type Tool interface {
	// ParseParams parses the raw JSON-decoded arguments map into whatever
	// shape Call expects.
	ParseParams(arguments map[string]any) (params any, err error)
	// Definition describes the tool for the tools array of a chat request.
	Definition() ToolDefinition
	// Call executes the tool. Errors are folded into the tool-result message
	// content rather than aborting the loop.
	Call(ctx context.Context, params any) (result string, err error)
}

// ToolDefinition is the name/description/parameters triple OpenAI needs to
// advertise a tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// WithTools attaches a tool-call loop to a chat node. If no tools are
// given, the option is a no-op.
func WithTools(tools ...Tool) ChatOption {
	return func(c *chatConfig) { c.tools = tools }
}

// runToolLoop drives the LLM<->tool round trip until the model stops
// requesting tools or maxToolIterations is reached.
func runToolLoop(ctx context.Context, client ChatClient, req openai.ChatCompletionRequest, tools []Tool) (openai.ChatCompletionResponse, error) {
	if len(tools) == 0 {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return openai.ChatCompletionResponse{}, &TransportError{Upstream: err}
		}
		return resp, nil
	}
	if len(req.Tools) > 0 {
		return openai.ChatCompletionResponse{}, ErrToolsAlreadyDefined
	}

	toolMap := make(map[string]Tool, len(tools))
	apiTools := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		def := t.Definition()
		toolMap[def.Name] = t
		apiTools = append(apiTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}

	current := req
	current.Messages = append([]openai.ChatCompletionMessage{}, req.Messages...)
	current.Tools = apiTools

	var final openai.ChatCompletionResponse
	for i := 0; i < maxToolIterations; i++ {
		resp, err := client.CreateChatCompletion(ctx, current)
		if err != nil {
			return openai.ChatCompletionResponse{}, &TransportError{Upstream: err}
		}
		final = resp
		if len(resp.Choices) == 0 {
			return openai.ChatCompletionResponse{}, errors.New("llmexec: response contained no choices")
		}
		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return final, nil
		}

		current.Messages = append(current.Messages, msg)
		for _, call := range msg.ToolCalls {
			current.Messages = append(current.Messages, toolResultMessage(ctx, toolMap, call))
		}
		current.Tools = nil
		current.ToolChoice = nil
	}

	rlog.Warn("llmexec: tool loop reached max iterations (%d)", maxToolIterations)
	return final, nil
}

func toolResultMessage(ctx context.Context, toolMap map[string]Tool, call openai.ToolCall) openai.ChatCompletionMessage {
	tool, ok := toolMap[call.Function.Name]
	if !ok {
		return errorToolMessage(call, fmt.Errorf("%w: %s", ErrUnknownTool, call.Function.Name))
	}

	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return errorToolMessage(call, fmt.Errorf("llmexec: failed to parse tool arguments: %w", err))
		}
	}

	params, err := tool.ParseParams(args)
	if err != nil {
		return errorToolMessage(call, err)
	}

	result, err := tool.Call(ctx, params)
	if err != nil {
		result = fmt.Sprintf("tool execution failed: %v", err)
	}
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    result,
		ToolCallID: call.ID,
		Name:       call.Function.Name,
	}
}

func errorToolMessage(call openai.ToolCall, err error) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    err.Error(),
		ToolCallID: call.ID,
		Name:       call.Function.Name,
	}
}

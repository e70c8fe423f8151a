package llmexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai/jsonschema"

	"agentgraph/rlog"
)

// ListMCPTools queries an upstream MCP server for its tool catalogue and
// wraps each tool as a llmexec.Tool the chat loop can call.
func ListMCPTools(ctx context.Context, mcpClient client.MCPClient) ([]Tool, error) {
	result, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("llmexec: failed to list MCP tools: %w", err)
	}
	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, &mcpTool{client: mcpClient, name: t.Name, description: t.Description, schema: schemaFromMCP(t)})
	}
	return tools, nil
}

type mcpTool struct {
	client      client.MCPClient
	name        string
	description string
	schema      jsonschema.Definition
}

func (t *mcpTool) ParseParams(arguments map[string]any) (any, error) {
	return arguments, nil
}

func (t *mcpTool) Definition() ToolDefinition {
	return ToolDefinition{Name: t.name, Description: t.description, Parameters: t.schema}
}

func (t *mcpTool) Call(ctx context.Context, params any) (string, error) {
	args, _ := params.(map[string]any)
	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	result, err := t.client.CallTool(ctx, req)
	return formatMCPResult(t.name, result, err), nil
}

// formatMCPResult converts a *mcp.CallToolResult/error pair into the plain
// string that goes in a tool-role chat message's content.
func formatMCPResult(toolName string, result *mcp.CallToolResult, callErr error) string {
	if callErr != nil {
		rlog.Error("llmexec: MCP call to %s failed: %v", toolName, callErr)
		return fmt.Sprintf("error invoking tool %s: %v", toolName, callErr)
	}
	if result == nil || len(result.Content) == 0 {
		return fmt.Sprintf("tool %s executed successfully with no output", toolName)
	}

	var parts []string
	for _, item := range result.Content {
		if text, ok := item.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
			continue
		}
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		parts = append(parts, string(raw))
	}
	joined := strings.Join(parts, "\n")
	if result.IsError {
		return fmt.Sprintf("error reported by tool %s: %s", toolName, joined)
	}
	return joined
}

func schemaFromMCP(t mcp.Tool) jsonschema.Definition {
	props := make(map[string]jsonschema.Definition, len(t.InputSchema.Properties))
	for name := range t.InputSchema.Properties {
		props[name] = jsonschema.Definition{Type: jsonschema.String}
	}
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: props,
		Required:   t.InputSchema.Required,
	}
}

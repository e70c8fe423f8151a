// Package mcpbridge exposes GraphNodes as MCP tools on a mark3labs MCP
// server. For the other direction it only re-exports the mcp-go client
// type; calling upstream MCP tools is done by llmexec.ListMCPTools.
package mcpbridge

import (
	"context"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agentgraph"
)

// toolHandler is kept unexported so only IntoTool can produce a Tool.
type toolHandler interface {
	handleRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Tool is a GraphNode exposed over MCP.
type Tool interface {
	Definition() mcp.Tool
	toolHandler
}

// IntoTool turns a GraphNode into an MCP tool. mapReq/mapResp translate
// between the MCP wire shapes and the node's Input/Output maps, since the
// core only speaks map[string]any rather than a generic In/Out type pair.
func IntoTool(
	node *agentgraph.GraphNode,
	schema mcp.Tool,
	mapReq func(context.Context, mcp.CallToolRequest) (agentgraph.Input, error),
	mapResp func(context.Context, agentgraph.Output) (*mcp.CallToolResult, error),
) Tool {
	return &tool{node: node, schema: schema, mapReq: mapReq, mapResp: mapResp}
}

type tool struct {
	node    *agentgraph.GraphNode
	schema  mcp.Tool
	mapReq  func(context.Context, mcp.CallToolRequest) (agentgraph.Input, error)
	mapResp func(context.Context, agentgraph.Output) (*mcp.CallToolResult, error)
}

func (t *tool) Definition() mcp.Tool { return t.schema }

func (t *tool) handleRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := t.mapReq(ctx, req)
	if err != nil {
		return nil, err
	}
	_, resCh := t.node.Invoke(ctx, in)
	res := <-resCh
	if res.Err != nil {
		return nil, res.Err
	}
	return t.mapResp(ctx, res.Output)
}

// NewServer registers tools onto an existing mark3labs MCP server.
func NewServer(s *server.MCPServer, tools ...Tool) *server.MCPServer {
	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, tl := range tools {
		serverTools = append(serverTools, server.ServerTool{
			Tool:    tl.Definition(),
			Handler: tl.handleRequest,
		})
	}
	s.AddTools(serverTools...)
	return s
}

// DialToolClient is a thin re-export point for the mcp-go client package so
// callers wiring an upstream MCP server (the other direction: this graph
// calling out to tools hosted elsewhere) don't need a second import.
type DialToolClient = client.MCPClient

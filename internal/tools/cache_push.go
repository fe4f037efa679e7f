package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/swcache/internal/lifecycle"
)

// CachePushHandler returns the MCP tool handler for the "cache-push" tool.
// An omitted body behaves like a push without payload.
func CachePushHandler(host *lifecycle.Host) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var payload []byte
		if body := req.GetString("body", ""); body != "" {
			payload = []byte(body)
		}
		n, err := host.Push(ctx, payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b, err := json.MarshalIndent(n, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}

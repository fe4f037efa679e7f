package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/swcache/internal/lifecycle"
	"github.com/leonardcser/swcache/internal/strategy"
	"github.com/leonardcser/swcache/internal/web"
)

// CacheFetchHandler returns the MCP tool handler for the "cache-fetch" tool.
// The request goes through the interception layer exactly as a proxied one.
func CacheFetchHandler(host *lifecycle.Host) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return mcp.NewToolResultError("url must start with http:// or https://"), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mode, gen := host.Route(httpReq)
		resp, err := host.RoundTrip(httpReq)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, web.MaxRenderSize+1))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ps, err := web.Render(url, resp.Header.Get("Content-Type"), body)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatFetchResult(resp.StatusCode, mode, gen, ps)), nil
	}
}

// formatFetchResult puts how the request was routed above the rendered page.
// Links go last since cached shells tend to carry many of them.
func formatFetchResult(status int, mode strategy.Mode, gen string, ps *web.PageSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status: %d\n", status)
	if gen == "" {
		fmt.Fprintf(&sb, "Route: %s\n\n", mode)
	} else {
		fmt.Fprintf(&sb, "Route: %s via %s\n\n", mode, gen)
	}
	if ps.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", ps.Title)
	}
	if ps.Description != "" {
		sb.WriteString(ps.Description + "\n\n")
	}
	sb.WriteString(ps.Text)
	if len(ps.Links) > 0 {
		sb.WriteString("\n\n## Links\n")
		for _, l := range ps.Links {
			sb.WriteString("- " + l + "\n")
		}
	}
	return sb.String()
}

package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/swcache/internal/lifecycle"
)

// CacheGenerationsHandler returns the MCP tool handler for the
// "cache-generations" tool.
func CacheGenerationsHandler(host *lifecycle.Host) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := host.Status(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatStatus(st)), nil
	}
}

// formatStatus lists stored generations, marking the ones in use.
func formatStatus(st lifecycle.Status) string {
	var sb strings.Builder
	sb.WriteString("State: ")
	sb.WriteString(st.State)
	if st.Version != "" {
		sb.WriteString(" (")
		sb.WriteString(st.Version)
		sb.WriteString(")")
	}
	sb.WriteString("\n\n")

	if len(st.Generations) == 0 {
		sb.WriteString("No generations.")
	} else {
		sb.WriteString("Generations:\n")
		for i, g := range st.Generations {
			sb.WriteString(fmt.Sprintf("%d. %s", i+1, g))
			if slices.Contains(st.Current, g) {
				sb.WriteString(" [current]")
			}
			sb.WriteString("\n")
		}
	}

	s := st.Stats
	sb.WriteString(fmt.Sprintf("\nHits: %d, misses: %d, network failures: %d, fallbacks: %d, writes: %d, write errors: %d",
		s.Hits, s.Misses, s.NetworkFailures, s.Fallbacks, s.Writes, s.WriteErrors))
	return sb.String()
}

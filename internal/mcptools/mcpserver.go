package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewProgressMCPServer creates an MCP server with the 4 progress tools registered:
// observe_workspace, get_progress, reset_progress and dismiss_overlay.
func NewProgressMCPServer(svc *ProgressService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "studyprogress",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "observe_workspace",
		Description: "Follow the progress of a workspace's study-material run. Switching workspace discards the previous run's state. An empty workspaceId stops observing.",
	}, svc.ObserveWorkspace)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_progress",
		Description: "Get the loading state of the observed workspace: whether analysis is running, the current step, per-stage completion, errors, and completed artifacts.",
	}, svc.GetProgress)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_progress",
		Description: "Discard the observed run's progress and start from the empty state. The workspace stays observed.",
	}, svc.ResetProgress)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dismiss_overlay",
		Description: "Hide the progress overlay until the next event arrives. The loading state is unchanged.",
	}, svc.DismissOverlay)

	return server
}

// RunProgressMCPServerStdio runs the MCP server on stdio transport, blocking
// until stdin is closed or the context is cancelled.
func RunProgressMCPServerStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

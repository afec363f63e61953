// Package registry exposes the capability catalogue and the agent status as
// read-only MCP tools, so a client can see what kratos can do before it
// submits a request.
package registry

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kratos/internal/server"
	"github.com/giantswarm/kratos/internal/tools"
)

// Tool names.
const (
	ToolCapabilities = "kratos_capabilities"
	ToolStatus       = "kratos_status"
)

// defaultPageSize is the number of capabilities returned per page.
const defaultPageSize = 20

// RegisterRegistryTools registers the catalogue and status tools with the MCP server.
func RegisterRegistryTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	capabilitiesTool := mcp.NewTool(ToolCapabilities,
		mcp.WithDescription("List the functions kratos can run, with their agent, parameters and whether they are idempotent"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("agent",
			mcp.Description("Only list functions of this agent (optional)"),
		),
		mcp.WithString("query",
			mcp.Description("Rank functions against a free-text hint, e.g. 'restart deployment' (optional)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of items to return per page (optional, default: 20)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of items to skip (optional, for simple offset-based pagination)"),
		),
	)
	s.AddTool(capabilitiesTool, tools.WrapWithAuditLogging(ToolCapabilities, handleCapabilities, sc))

	statusTool := mcp.NewTool(ToolStatus,
		mcp.WithDescription("Report agents with their availability and breaker state, the known clusters and session counts"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(statusTool, tools.WrapWithAuditLogging(ToolStatus, handleStatus, sc))

	return nil
}

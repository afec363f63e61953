package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/server"
	"github.com/giantswarm/kratos/internal/tools"
)

// capabilityPage is the JSON reply of kratos_capabilities.
type capabilityPage struct {
	Items   []capabilityItem `json:"items"`
	Total   int              `json:"total"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"has_more"`
}

type capabilityItem struct {
	capability.Capability
	Schema map[string]any `json:"schema"`
}

func handleCapabilities(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	agent := strings.TrimSpace(request.GetString("agent", ""))
	query := strings.TrimSpace(request.GetString("query", ""))
	limit := tools.OptionalLimit(request, "limit", defaultPageSize)
	offset := request.GetInt("offset", 0)
	if offset < 0 {
		return mcp.NewToolResultError("offset must not be negative"), nil
	}

	caps := sc.Conversations().Capabilities()
	if query != "" {
		caps = rank(caps, query)
	}
	if agent != "" {
		filtered := caps[:0:0]
		for _, c := range caps {
			if c.AgentID == agent {
				filtered = append(filtered, c)
			}
		}
		caps = filtered
	}

	page := capabilityPage{Items: []capabilityItem{}, Total: len(caps), Offset: offset}
	if offset < len(caps) {
		end := min(offset+limit, len(caps))
		for _, c := range caps[offset:end] {
			page.Items = append(page.Items, capabilityItem{Capability: c, Schema: capability.JSONSchema(c)})
		}
		page.HasMore = end < len(caps)
	}
	return jsonResult(page)
}

// rank orders caps by score against query and drops those that do not match.
func rank(caps []capability.Capability, query string) []capability.Capability {
	reg, err := capability.NewRegistryFrom(caps)
	if err != nil {
		return nil
	}
	return reg.FindCandidates(query)
}

func handleStatus(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return jsonResult(sc.Conversations().Status())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

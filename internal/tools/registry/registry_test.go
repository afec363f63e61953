package registry

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/intent"
	"github.com/giantswarm/kratos/internal/k8sagent"
	"github.com/giantswarm/kratos/internal/orchestrator"
	"github.com/giantswarm/kratos/internal/server"
)

type idleExecutor struct{}

func (idleExecutor) Execute(context.Context, executor.Call) executor.Result {
	return executor.Result{Status: executor.StatusOK}
}

func (idleExecutor) Agents() []string { return []string{k8sagent.AgentID} }

func (idleExecutor) BreakerState(string) string { return "closed" }

func newServer(t *testing.T) *mcpserver.MCPServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	caps := append(k8sagent.Catalogue(), capability.Capability{
		AgentID:     "dns-agent",
		Function:    "list_zones",
		Description: "List DNS zones",
		Keywords:    []string{"dns"},
	})
	registry, err := capability.NewRegistryFrom(caps)
	require.NoError(t, err)
	clusters, err := clusterctx.NewManager(clusterctx.Context{ID: "staging", Active: true})
	require.NoError(t, err)
	orch := orchestrator.New(orchestrator.Config{}, registry, clusters, intent.NewRuleResolver(0),
		idleExecutor{}, history.NewMemoryStore(), orchestrator.WithLogger(logger))

	sc, err := server.NewServerContext(context.Background(),
		server.WithConversations(orch),
		server.WithLogger(logger),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	srv := mcpserver.NewMCPServer("test", "0.0.1", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterRegistryTools(srv, sc))
	return srv
}

func call(t *testing.T, srv *mcpserver.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool, ok := srv.ListTools()[name]
	require.True(t, ok, name)
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	return result
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var v T
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &v), tc.Text)
	return v
}

func TestRegisterRegistryTools(t *testing.T) {
	srv := newServer(t)
	registered := srv.ListTools()
	for _, name := range []string{ToolCapabilities, ToolStatus} {
		tool, ok := registered[name]
		require.True(t, ok, name)
		require.NotNil(t, tool.Tool.Annotations.ReadOnlyHint)
		assert.True(t, *tool.Tool.Annotations.ReadOnlyHint)
	}
}

func TestCapabilitiesPagination(t *testing.T) {
	srv := newServer(t)
	total := len(k8sagent.Catalogue()) + 1

	page := decode[capabilityPage](t, call(t, srv, ToolCapabilities, map[string]any{"limit": float64(3)}))
	assert.Equal(t, total, page.Total)
	require.Len(t, page.Items, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, "dns-agent", page.Items[0].AgentID)
	assert.Equal(t, "object", page.Items[0].Schema["type"])

	page = decode[capabilityPage](t, call(t, srv, ToolCapabilities, map[string]any{"offset": float64(total - 1)}))
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	page = decode[capabilityPage](t, call(t, srv, ToolCapabilities, map[string]any{"offset": float64(total + 5)}))
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestCapabilitiesFilters(t *testing.T) {
	srv := newServer(t)

	page := decode[capabilityPage](t, call(t, srv, ToolCapabilities, map[string]any{"agent": "dns-agent"}))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "list_zones", page.Items[0].Function)

	page = decode[capabilityPage](t, call(t, srv, ToolCapabilities, map[string]any{"query": "scale_deployment"}))
	require.NotEmpty(t, page.Items)
	assert.Equal(t, k8sagent.FuncScaleDeployment, page.Items[0].Function)

	result := call(t, srv, ToolCapabilities, map[string]any{"offset": float64(-1)})
	assert.True(t, result.IsError)
}

func TestStatus(t *testing.T) {
	srv := newServer(t)

	status := decode[orchestrator.Status](t, call(t, srv, ToolStatus, nil))
	require.Len(t, status.Clusters, 1)
	assert.Equal(t, "staging", status.Clusters[0].ID)

	agents := map[string]orchestrator.AgentStatus{}
	for _, a := range status.Agents {
		agents[a.ID] = a
	}
	assert.True(t, agents[k8sagent.AgentID].Available)
	assert.False(t, agents["dns-agent"].Available)
}

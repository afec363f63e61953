package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/logging"
)

// MCPClient is the part of the mcp-go client a remote backend needs.
type MCPClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// RemoteAgent describes how to reach a remote MCP agent. Exactly one of
// Endpoint and Command is set.
type RemoteAgent struct {
	ID       string
	Endpoint string
	Command  string
	Args     []string
	Env      map[string]string
}

// MCPBackend forwards invocations to a remote MCP server. The target cluster
// is passed as the "cluster" argument unless the call already binds one.
type MCPBackend struct {
	agent  string
	client MCPClient
	logger *slog.Logger
}

// NewMCPBackend wraps an initialized client.
func NewMCPBackend(agent string, client MCPClient, logger *slog.Logger) *MCPBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPBackend{agent: agent, client: client, logger: logging.WithAgent(logger, agent)}
}

// DialMCP connects to a remote agent over streamable HTTP ({endpoint}/mcp)
// or stdio and performs the MCP handshake.
func DialMCP(ctx context.Context, remote RemoteAgent, version string, logger *slog.Logger) (*MCPBackend, error) {
	var c *mcpclient.Client
	switch {
	case remote.Endpoint != "":
		url := strings.TrimRight(remote.Endpoint, "/")
		if !strings.HasSuffix(url, "/mcp") {
			url += "/mcp"
		}
		t, err := transport.NewStreamableHTTP(url)
		if err != nil {
			return nil, fmt.Errorf("create http transport for %q: %w", remote.ID, err)
		}
		c = mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client for %q: %w", remote.ID, err)
		}
	case remote.Command != "":
		env := make([]string, 0, len(remote.Env))
		for _, k := range sortedKeys(remote.Env) {
			env = append(env, k+"="+remote.Env[k])
		}
		var err error
		c, err = mcpclient.NewStdioMCPClient(remote.Command, env, remote.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client for %q: %w", remote.ID, err)
		}
	default:
		return nil, fmt.Errorf("agent %q has neither endpoint nor command", remote.ID)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "kratos", Version: version}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize %q: %w", remote.ID, err)
	}

	b := NewMCPBackend(remote.ID, c, logger)
	b.logger.Info("remote agent connected", slog.String("endpoint", logging.SanitizeHost(remote.Endpoint)))
	return b, nil
}

// Invoke calls the tool named after the function.
func (b *MCPBackend) Invoke(ctx context.Context, inv Invocation) (Outcome, error) {
	args := maps.Clone(inv.Params)
	if args == nil {
		args = make(map[string]any)
	}
	if _, ok := args["cluster"]; !ok && inv.Cluster.ID != "" {
		args["cluster"] = inv.Cluster.ID
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = inv.Function
	req.Params.Arguments = args

	b.logger.Debug("remote tool call", logging.Function(inv.Function), logging.Cluster(inv.Cluster.ID))

	result, err := b.client.CallTool(ctx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("call %s: %w", inv.Function, err)
	}

	text := contentText(result)
	if result.IsError {
		return Outcome{}, fmt.Errorf("%s: %s", inv.Function, text)
	}

	out := Outcome{Status: StatusOK, Summary: text, Data: result.StructuredContent}
	if out.Data == nil {
		var decoded any
		if json.Unmarshal([]byte(text), &decoded) == nil {
			out.Data = decoded
		}
	}
	return out, nil
}

// Capabilities lists the remote tools as capabilities of the agent.
// Tools annotated read-only are idempotent.
func (b *MCPBackend) Capabilities(ctx context.Context) ([]capability.Capability, error) {
	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools of %q: %w", b.agent, err)
	}

	caps := make([]capability.Capability, 0, len(result.Tools))
	for _, t := range result.Tools {
		c := capability.Capability{
			AgentID:       b.agent,
			Function:      t.Name,
			Description:   t.Description,
			ClusterScoped: true,
		}
		if t.Annotations.ReadOnlyHint != nil {
			c.Idempotent = *t.Annotations.ReadOnlyHint
		}
		required := make(map[string]bool, len(t.InputSchema.Required))
		for _, r := range t.InputSchema.Required {
			required[r] = true
		}
		for _, name := range sortedKeys(t.InputSchema.Properties) {
			if name == "cluster" {
				continue
			}
			c.Params = append(c.Params, toolParam(name, t.InputSchema.Properties[name], required[name]))
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// Close closes the client.
func (b *MCPBackend) Close() error {
	return b.client.Close()
}

func toolParam(name string, raw any, required bool) capability.Param {
	p := capability.Param{Name: name, Type: capability.TypeString, Required: required}
	prop, ok := raw.(map[string]any)
	if !ok {
		return p
	}
	if t, ok := prop["type"].(string); ok && capability.ParamType(t).Valid() {
		p.Type = capability.ParamType(t)
	}
	if d, ok := prop["description"].(string); ok {
		p.Description = d
	}
	if !required {
		p.Default = prop["default"]
	}
	return p
}

func contentText(result *mcp.CallToolResult) string {
	parts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

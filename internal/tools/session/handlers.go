package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/orchestrator"
	"github.com/giantswarm/kratos/internal/server"
	"github.com/giantswarm/kratos/internal/tools"
)

// submitResult is the JSON reply of kratos_submit.
type submitResult struct {
	*orchestrator.Response
	Error string `json:"error,omitempty"`
}

// transcriptResult is the JSON reply of kratos_transcript.
type transcriptResult struct {
	SessionID string         `json:"session_id"`
	Total     int            `json:"total"`
	Turns     []history.Turn `json:"turns"`
	Truncated bool           `json:"truncated,omitempty"`
}

func handleNewSession(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.IsShutdown() {
		return mcp.NewToolResultError(server.ErrServerShutdown.Error()), nil
	}
	info, err := sc.Conversations().NewSession(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start session: %v", err)), nil
	}
	return jsonResult(info)
}

func handleSubmit(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id, err := tools.RequireNonEmpty(request, tools.SessionIDParam)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	utterance, err := tools.RequireNonEmpty(request, "utterance")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := sc.Conversations().Submit(ctx, id, utterance)
	if err != nil {
		return mcp.NewToolResultError(lifecycleMessage(err)), nil
	}

	out := submitResult{Response: resp}
	if resp.Err != nil {
		out.Error = resp.Err.Error()
	}
	return jsonResult(out)
}

func handleEndSession(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id, err := tools.RequireNonEmpty(request, tools.SessionIDParam)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sc.Conversations().EndSession(ctx, id); err != nil {
		return mcp.NewToolResultError(lifecycleMessage(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s ended.", id)), nil
}

func handleResetSession(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id, err := tools.RequireNonEmpty(request, tools.SessionIDParam)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := sc.Conversations().ResetSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(lifecycleMessage(err)), nil
	}
	return jsonResult(info)
}

func handleListSessions(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sessions := sc.Conversations().ListSessions()
	if sessions == nil {
		sessions = []orchestrator.SessionInfo{}
	}
	return jsonResult(map[string]any{"sessions": sessions})
}

func handleTranscript(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	id, err := tools.RequireNonEmpty(request, tools.SessionIDParam)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := tools.OptionalLimit(request, "limit", DefaultTranscriptLimit)

	turns, err := sc.Conversations().Transcript(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(lifecycleMessage(err)), nil
	}

	out := transcriptResult{SessionID: id, Total: len(turns), Turns: turns}
	if len(turns) > limit {
		out.Turns = turns[len(turns)-limit:]
		out.Truncated = true
	}
	if out.Turns == nil {
		out.Turns = []history.Turn{}
	}
	return jsonResult(out)
}

// lifecycleMessage phrases session errors for the calling model.
func lifecycleMessage(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound), errors.Is(err, orchestrator.ErrSessionEnded):
		return fmt.Sprintf("%v. Start a new one with %s.", err, ToolNewSession)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled before the turn completed."
	}
	return fmt.Sprintf("Failed to process request: %v", err)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

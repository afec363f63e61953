package session

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kratos/internal/server"
	"github.com/giantswarm/kratos/internal/tools"
)

// Tool names.
const (
	ToolNewSession   = "kratos_new_session"
	ToolSubmit       = "kratos_submit"
	ToolEndSession   = "kratos_end_session"
	ToolResetSession = "kratos_reset_session"
	ToolListSessions = "kratos_list_sessions"
	ToolTranscript   = "kratos_transcript"
)

// DefaultTranscriptLimit is the number of most recent turns returned when
// the caller does not ask for a limit.
const DefaultTranscriptLimit = 50

// RegisterSessionTools registers the conversation tools with the MCP server.
func RegisterSessionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	newSessionTool := mcp.NewTool(ToolNewSession,
		mcp.WithDescription("Start a conversation session. Utterances submitted to it run against the active cluster, which the session can switch independently of other sessions."),
	)
	s.AddTool(newSessionTool, tools.WrapWithAuditLogging(ToolNewSession, handleNewSession, sc))

	submitTool := mcp.NewTool(ToolSubmit,
		mcp.WithDescription("Submit a natural-language request to a session, e.g. 'scale web-app to 5 replicas' or 'restart nginx in production'. "+
			"The reply is a result, a clarifying question to answer with another submit, or an error. "+
			"'help', 'status', 'functions', 'reset' and 'exit' are session commands."),
		mcp.WithString(tools.SessionIDParam,
			mcp.Required(),
			mcp.Description("Session ID returned by "+ToolNewSession),
		),
		mcp.WithString("utterance",
			mcp.Required(),
			mcp.Description("What to do, in plain language"),
		),
	)
	s.AddTool(submitTool, tools.WrapWithAuditLogging(ToolSubmit, handleSubmit, sc))

	endTool := mcp.NewTool(ToolEndSession,
		mcp.WithDescription("End a session. Its transcript stays readable."),
		mcp.WithString(tools.SessionIDParam,
			mcp.Required(),
			mcp.Description("Session ID"),
		),
	)
	s.AddTool(endTool, tools.WrapWithAuditLogging(ToolEndSession, handleEndSession, sc))

	resetTool := mcp.NewTool(ToolResetSession,
		mcp.WithDescription("Start a session over under the same ID: clears its transcript, pending question, round count and cluster selection"),
		mcp.WithString(tools.SessionIDParam,
			mcp.Required(),
			mcp.Description("Session ID"),
		),
	)
	s.AddTool(resetTool, tools.WrapWithAuditLogging(ToolResetSession, handleResetSession, sc))

	listTool := mcp.NewTool(ToolListSessions,
		mcp.WithDescription("List open sessions with their state, round count and active cluster"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(listTool, tools.WrapWithAuditLogging(ToolListSessions, handleListSessions, sc))

	transcriptTool := mcp.NewTool(ToolTranscript,
		mcp.WithDescription("Read the ordered turns of a session, including sessions that have ended"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString(tools.SessionIDParam,
			mcp.Required(),
			mcp.Description("Session ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Return only the most recent turns (default 50)"),
		),
	)
	s.AddTool(transcriptTool, tools.WrapWithAuditLogging(ToolTranscript, handleTranscript, sc))

	return nil
}

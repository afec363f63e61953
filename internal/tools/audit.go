package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/logging"
	"github.com/giantswarm/kratos/internal/server"
)

// WrapWithAuditLogging wraps a tool handler with a span and one audit log
// line per invocation. The session argument, when present, is attached to
// both; the utterance is never logged.
func WrapWithAuditLogging(
	toolName string,
	handler ToolHandler,
	sc *server.ServerContext,
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := request.GetString(SessionIDParam, "")

		attrs := []attribute.KeyValue{attribute.String("mcp.tool", toolName)}
		if sessionID != "" {
			attrs = append(attrs, instrumentation.NewSpanAttributeBuilder().WithSession(sessionID).Build()...)
		}
		ctx, span := instrumentation.StartSpan(ctx, "tool."+toolName, attrs...)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request, sc)

		logger := logging.WithTool(sc.Logger(), toolName)
		if sessionID != "" {
			logger = logger.With(logging.Session(sessionID))
		}
		fields := []any{logging.Duration(time.Since(start))}

		switch {
		case err != nil:
			instrumentation.SetSpanError(span, err)
			logger.Error("Tool invocation failed", append(fields, logging.Err(err))...)
		case result != nil && result.IsError:
			span.SetAttributes(attribute.Bool("mcp.tool_error", true))
			logger.Warn("Tool returned an error", append(fields, slog.String("error", resultText(result)))...)
		default:
			instrumentation.SetSpanSuccess(span)
			logger.Info("Tool invocation", fields...)
		}

		return result, err
	}
}

// resultText returns the first text content of result.
func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

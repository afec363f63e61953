package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/intent"
)

// maxDataBytes bounds raw data rendered when a backend sends no summary.
const maxDataBytes = 4096

func formatResult(call *intent.ResolvedCall, target clusterctx.Context, res executor.Result) string {
	switch res.Status {
	case executor.StatusOK:
		if res.Summary != "" {
			return res.Summary
		}
		if res.Data != nil {
			return renderData(res.Data)
		}
		return fmt.Sprintf("%s completed.", call.Capability.Function)

	case executor.StatusPartial:
		var sb strings.Builder
		sb.WriteString("Partially completed")
		if res.Summary != "" {
			sb.WriteString(": " + res.Summary)
		}
		for _, it := range res.Items {
			fmt.Fprintf(&sb, "\n  - %s: %s", it.Name, it.Outcome)
			if it.Detail != "" {
				fmt.Fprintf(&sb, " (%s)", it.Detail)
			}
		}
		return sb.String()
	}

	where := ""
	if target.ID != "" {
		where = " on cluster " + target.Name()
	}
	detail := res.ErrorDetail
	if detail == "" && res.Err != nil {
		detail = userMessage(res.Err)
	}
	return fmt.Sprintf("Failed to run %s%s: %s", call.Capability.Function, where, detail)
}

func renderData(data any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprint(data)
	}
	if len(b) > maxDataBytes {
		return string(b[:maxDataBytes]) + "\n... (truncated)"
	}
	return string(b)
}

func droppedMessage(call *intent.ResolvedCall) string {
	return fmt.Sprintf("OK, I dropped the pending %s request. Nothing was run.", call.Capability.Function)
}

func noMatchMessage(nm *intent.NoMatch) string {
	var sb strings.Builder
	sb.WriteString("Sorry, I couldn't match that to anything I can do.")
	if len(nm.Suggestions) > 0 {
		names := make([]string, 0, len(nm.Suggestions))
		for _, ref := range nm.Suggestions {
			names = append(names, ref.Function)
		}
		fmt.Fprintf(&sb, " Did you mean %s?", strings.Join(names, " or "))
	}
	sb.WriteString(" Type 'help' for examples or 'functions' for the full list.")
	return sb.String()
}

package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// SessionIDParam is the argument naming a conversation session.
const SessionIDParam = "session_id"

// RequireNonEmpty returns the trimmed string argument name, failing when it
// is missing or blank.
func RequireNonEmpty(request mcp.CallToolRequest, name string) (string, error) {
	v, err := request.RequireString(name)
	if err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	return v, nil
}

// OptionalLimit returns a positive integer argument, or def when it is
// absent or not positive.
func OptionalLimit(request mcp.CallToolRequest, name string, def int) int {
	if n := request.GetInt(name, def); n > 0 {
		return n
	}
	return def
}

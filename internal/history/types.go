package history

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTurn is returned for turns that cannot be appended.
var ErrInvalidTurn = errors.New("invalid turn")

// Role is the speaker of a turn.
type Role string

const (
	RoleUser     Role = "user"
	RoleResolver Role = "resolver"
	RoleExecutor Role = "executor"
	RoleSystem   Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleResolver, RoleExecutor, RoleSystem:
		return true
	}
	return false
}

// CallRecord is the persisted form of a resolved call.
type CallRecord struct {
	Agent      string         `json:"agent"`
	Function   string         `json:"function"`
	Params     map[string]any `json:"params,omitempty"`
	Cluster    string         `json:"cluster,omitempty"`
	Confidence float64        `json:"confidence"`
	// Missing lists required parameters still unbound when the call was
	// recorded for a clarification.
	Missing []string `json:"missing,omitempty"`
}

// ItemRecord is one itemised outcome of a partial result.
type ItemRecord struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// ResultRecord is the persisted form of an execution result.
type ResultRecord struct {
	Status      string        `json:"status"`
	Summary     string        `json:"summary,omitempty"`
	Data        any           `json:"data,omitempty"`
	Items       []ItemRecord  `json:"items,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Attempts    int           `json:"attempts,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Turn is one atomic step of a transcript. Exactly one of Text, Call and
// Result carries the payload.
type Turn struct {
	Index     int           `json:"index"`
	Role      Role          `json:"role"`
	Text      string        `json:"text,omitempty"`
	Call      *CallRecord   `json:"call,omitempty"`
	Result    *ResultRecord `json:"result,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Validate checks the turn before it is appended.
func (t Turn) Validate() error {
	if !t.Role.Valid() {
		return errors.Join(ErrInvalidTurn, errors.New("unknown role "+string(t.Role)))
	}
	payloads := 0
	if t.Text != "" {
		payloads++
	}
	if t.Call != nil {
		payloads++
	}
	if t.Result != nil {
		payloads++
	}
	if payloads != 1 {
		return errors.Join(ErrInvalidTurn, errors.New("turn needs exactly one payload"))
	}
	return nil
}

// Execution is the audit record of one tool execution.
type Execution struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Agent     string         `json:"agent"`
	Function  string         `json:"function"`
	Params    map[string]any `json:"parameters,omitempty"`
	Cluster   string         `json:"cluster,omitempty"`
	Result    ResultRecord   `json:"result"`
}

// Store persists transcripts and executions.
type Store interface {
	// Append assigns the next index of the session and stores the turn.
	Append(ctx context.Context, sessionID string, turn Turn) (Turn, error)
	// Turns returns the full transcript in index order.
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	// Recent returns the last n turns in index order.
	Recent(ctx context.Context, sessionID string, n int) ([]Turn, error)
	// RecordExecution stores one execution.
	RecordExecution(ctx context.Context, exec Execution) error
	// Executions returns executions in record order; an empty session ID
	// returns every session's executions.
	Executions(ctx context.Context, sessionID string) ([]Execution, error)
	// Delete drops a session's transcript and executions.
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

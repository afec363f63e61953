package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/intent"
)

// State is the state of a session's conversation.
type State int

const (
	StateAwaitingInput State = iota
	StateResolving
	StateClarifying
	StateExecuting
	StateReporting
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateResolving:
		return "resolving"
	case StateClarifying:
		return "clarifying"
	case StateExecuting:
		return "executing"
	case StateReporting:
		return "reporting"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateAwaitingInput; st <= StateEnded; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// EndReason tells why a session ended.
type EndReason string

const (
	EndReasonNone       EndReason = ""
	EndReasonUserExit   EndReason = "user_exit"
	EndReasonRoundLimit EndReason = "round_limit"
	EndReasonClosed     EndReason = "closed"
)

// Session is one conversation.
type Session struct {
	ID        string
	CreatedAt time.Time

	// mu is held for the whole of a turn.
	mu           sync.Mutex
	view         *clusterctx.View
	state        State
	rounds       int
	pending      *intent.Clarification
	endReason    EndReason
	lastActivity time.Time

	// published is the last SessionInfo taken under mu. Readers use it so
	// they never wait on a turn in flight.
	published atomic.Pointer[SessionInfo]
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	Rounds        int       `json:"rounds"`
	MaxRounds     int       `json:"max_rounds"`
	ActiveCluster string    `json:"active_cluster,omitempty"`
	Pending       []string  `json:"pending,omitempty"`
	EndReason     EndReason `json:"end_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// publishLocked requires s.mu.
func (s *Session) publishLocked(maxRounds int) {
	info := s.infoLocked(maxRounds)
	s.published.Store(&info)
}

// info returns the last published SessionInfo.
func (s *Session) info() SessionInfo {
	if info := s.published.Load(); info != nil {
		return *info
	}
	return SessionInfo{ID: s.ID, CreatedAt: s.CreatedAt}
}

// infoLocked requires s.mu.
func (s *Session) infoLocked(maxRounds int) SessionInfo {
	info := SessionInfo{
		ID:           s.ID,
		State:        s.state,
		Rounds:       s.rounds,
		MaxRounds:    maxRounds,
		EndReason:    s.endReason,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
	if c, err := s.view.ActiveCluster(); err == nil {
		info.ActiveCluster = c.ID
	}
	if s.pending != nil {
		info.Pending = append([]string(nil), s.pending.Missing...)
	}
	return info
}

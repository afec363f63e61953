package orchestrator

import "errors"

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when a turn is submitted to an ended session.
	ErrSessionEnded = errors.New("session has ended")

	// ErrRoundLimitExceeded marks the response that force-ends a session.
	ErrRoundLimitExceeded = errors.New("round limit exceeded")

	// ErrNoMatch marks a response to an utterance no capability matched.
	ErrNoMatch = errors.New("no matching capability")

	// ErrClarificationNeeded marks a response asking for missing parameters.
	// It is a control signal, not a failure.
	ErrClarificationNeeded = errors.New("clarification needed")
)

type userFacing interface {
	UserFacingError() string
}

// userMessage returns the message of err that is safe to show in a
// conversation.
func userMessage(err error) string {
	var uf userFacing
	if errors.As(err, &uf) {
		return uf.UserFacingError()
	}
	return err.Error()
}

package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a call exceeds its capability timeout.
	ErrTimeout = errors.New("execution timed out")

	// ErrTransientBackend marks failures that may succeed when retried:
	// unreachable backends, 5xx responses and open circuit breakers.
	ErrTransientBackend = errors.New("transient backend error")

	// ErrMutationFailed is returned when a mutating capability fails. Such
	// calls are never retried.
	ErrMutationFailed = errors.New("mutating call failed")

	// ErrNoBackend is returned when no backend is registered for an agent.
	ErrNoBackend = errors.New("no backend registered for agent")
)

// ExecutionError carries the call identity and the number of attempts made.
type ExecutionError struct {
	Agent    string
	Function string
	Attempts int
	Kind     error
	Err      error
}

func (e *ExecutionError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s/%s: %v", e.Agent, e.Function, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s/%s: %v", e.Agent, e.Function, e.Err)
	}
	return fmt.Sprintf("%s/%s: %v after %d attempt(s): %v", e.Agent, e.Function, e.Kind, e.Attempts, e.Err)
}

// Unwrap exposes both the classification sentinel and the backend error.
func (e *ExecutionError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// UserFacingError returns a message safe to show in a conversation.
func (e *ExecutionError) UserFacingError() string {
	switch {
	case errors.Is(e.Kind, ErrTimeout):
		return "Timeout"
	case errors.Is(e.Kind, ErrNoBackend):
		return fmt.Sprintf("agent %q is not available", e.Agent)
	case errors.Is(e.Kind, ErrMutationFailed):
		return fmt.Sprintf("%s failed and was not retried: %s", e.Function, userMessage(e.Err))
	case errors.Is(e.Kind, ErrTransientBackend):
		return fmt.Sprintf("agent %q is unavailable after %d attempt(s): %s", e.Agent, e.Attempts, userMessage(e.Err))
	}
	return userMessage(e.Err)
}

type userFacing interface {
	UserFacingError() string
}

func userMessage(err error) string {
	if err == nil {
		return ""
	}
	var uf userFacing
	if errors.As(err, &uf) {
		return uf.UserFacingError()
	}
	return err.Error()
}

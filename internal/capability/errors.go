package capability

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateCapability is returned when (agent, function) is registered twice.
	ErrDuplicateCapability = errors.New("duplicate capability")

	// ErrUnknownCapability is returned when a lookup finds no such capability.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrInvalidCapability is returned for capabilities that cannot be registered.
	ErrInvalidCapability = errors.New("invalid capability")

	// ErrInvalidParams is returned when bound parameters do not satisfy the schema.
	ErrInvalidParams = errors.New("invalid parameters")
)

// RefError attaches the capability reference to a registry error.
type RefError struct {
	Ref Ref
	Err error
}

func (e *RefError) Error() string {
	return fmt.Sprintf("%s: %v", e.Ref, e.Err)
}

func (e *RefError) Unwrap() error {
	return e.Err
}

// UserFacingError returns a message safe to show in a conversation.
func (e *RefError) UserFacingError() string {
	switch {
	case errors.Is(e.Err, ErrUnknownCapability):
		return fmt.Sprintf("I don't know how to run %q.", e.Ref.Function)
	case errors.Is(e.Err, ErrInvalidParams):
		return fmt.Sprintf("The parameters for %s are not valid: %v", e.Ref.Function, e.Err)
	default:
		return e.Error()
	}
}

// ParamsError describes a schema validation failure.
type ParamsError struct {
	Detail string
}

func (e *ParamsError) Error() string {
	return "invalid parameters: " + e.Detail
}

func (e *ParamsError) Unwrap() error {
	return ErrInvalidParams
}

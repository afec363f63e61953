package k8sagent

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrMutationBlocked is returned for mutating functions in non-destructive mode.
var ErrMutationBlocked = errors.New("mutating operation blocked")

// operations maps mutating functions to the operation they perform.
var operations = map[string]string{
	FuncRestartDeployment: "restart",
	FuncScaleDeployment:   "scale",
	FuncApplyYAML:         "apply",
}

// Policy decides which mutating functions may run.
//
// Mutations are allowed if:
//   - NonDestructive is disabled, OR
//   - DryRun is enabled (requests are validated but not persisted), OR
//   - the operation is listed in AllowedOperations
type Policy struct {
	NonDestructive    bool
	DryRun            bool
	AllowedOperations []string
}

// BlockedError names the refused operation.
type BlockedError struct {
	Operation string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMutationBlocked, e.Operation)
}

func (e *BlockedError) Unwrap() error {
	return ErrMutationBlocked
}

// UserFacingError returns a message safe to show in a conversation.
func (e *BlockedError) UserFacingError() string {
	return fmt.Sprintf("%s operations are not allowed in non-destructive mode (use --dry-run to validate without applying)",
		cases.Title(language.English).String(e.Operation))
}

// Check returns a *BlockedError if the function may not run.
func (p Policy) Check(function string) error {
	op, mutating := operations[function]
	if !mutating || !p.NonDestructive || p.DryRun {
		return nil
	}
	if slices.Contains(p.AllowedOperations, op) {
		return nil
	}
	return &BlockedError{Operation: op}
}

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrScriptFailed indicates that a specific script aborted the run.
	ErrScriptFailed = errors.New("script execution failed")

	// ErrSchemaVerification indicates the executor precondition check failed
	// before any script ran.
	ErrSchemaVerification = errors.New("schema verification failed")

	// ErrConnection indicates the operation guard could not be acquired.
	ErrConnection = errors.New("connection unavailable")

	// ErrNotExecuted indicates a rollback target that was never journaled.
	ErrNotExecuted = errors.New("script has not been executed")

	// ErrMissingCollaborator indicates an incomplete engine configuration.
	ErrMissingCollaborator = errors.New("missing collaborator")
)

// ScriptError wraps a failure with the identity of the script in flight and
// the operation being performed.
type ScriptError struct {
	Name      string // Script name that caused the error
	Operation string // Operation being performed (execute, journal, ...)
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("script %s: %s: %v", e.Name, e.Operation, e.Err)
	}
	return fmt.Sprintf("script error: %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *ScriptError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewScriptError creates a new ScriptError with context.
func NewScriptError(name, operation string, err error) *ScriptError {
	return &ScriptError{
		Name:      name,
		Operation: operation,
		Err:       err,
	}
}

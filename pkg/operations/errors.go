// Package operations persists user-requested bulk mutations under admission
// control and executes them asynchronously against the engine, one future
// per dispatched operation.
package operations

import "errors"

// Validation errors, rejected before anything is persisted (400 responses).
var (
	ErrInvalidOperationType = errors.New("invalid operation type")
	ErrVariableNameRequired = errors.New("variable name must be provided")
	ErrRetriesRequired      = errors.New("retries must be at least 1")
)

// ErrTooManyInstances rejects a batch whose filter matches more instances
// than the configured maximum. Nothing is persisted (422 responses).
var ErrTooManyInstances = errors.New("too many instances")

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidOperationType) ||
		errors.Is(err, ErrVariableNameRequired) ||
		errors.Is(err, ErrRetriesRequired)
}

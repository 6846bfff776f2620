// Package readmodel reconstructs the query views of the monitoring index:
// the hierarchical activity tree, the incident aggregation view, the
// filterable instance list and variables by scope. Every view reads through
// the live+archive alias of its index, so a query returns the same result
// whether an instance has been archived or not.
package readmodel

import "errors"

// Validation errors, rejected before any store access (400 responses).
var (
	ErrInstanceIDRequired = errors.New("instance id must be provided")
	ErrScopeIDRequired    = errors.New("scope id must be provided")
)

// Not-found errors (404 responses).
var (
	ErrInstanceNotFound = errors.New("workflow instance not found")
)

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInstanceIDRequired) ||
		errors.Is(err, ErrScopeIDRequired)
}

// IsNotFound checks if an error is a not-found error that should return
// HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

package store

import (
	"errors"
	"fmt"
)

// Standard store error types all implementations surface.
var (
	// ErrDocumentNotFound indicates no document exists under the given id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrIndexNotFound indicates a read against an index that was never created.
	ErrIndexNotFound = errors.New("index not found")
)

// IndexError wraps a store failure with the index and operation it hit.
type IndexError struct {
	Op    string // Operation being performed (e.g., "BulkUpsert", "Reindex")
	Index string
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s failed on index %s: %v", e.Op, e.Index, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func (e *IndexError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewIndexError creates an IndexError.
func NewIndexError(op, index string, err error) *IndexError {
	return &IndexError{Op: op, Index: index, Err: err}
}

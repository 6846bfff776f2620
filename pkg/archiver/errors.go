package archiver

import (
	"errors"
	"fmt"
)

// ReindexError marks a failed copy into an archive partition. The live
// documents are untouched; the whole group is retried on the next scheduled
// batch.
type ReindexError struct {
	Op    string
	Index string
	Err   error
}

func (e *ReindexError) Error() string {
	return fmt.Sprintf("%s failed to copy index %s: %v", e.Op, e.Index, e.Err)
}

func (e *ReindexError) Unwrap() error {
	return e.Err
}

func (e *ReindexError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// PersistenceError marks a failed delete of already-copied live documents.
// The copies exist, so the affected documents appear in both partitions until
// the next batch deletes them; alias reads still see them exactly once.
type PersistenceError struct {
	Op    string
	Index string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed to clean index %s: %v", e.Op, e.Index, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

package storage

import (
	"errors"
	"fmt"
)

// ErrNoReportSettings marks a user who never configured a reporting period.
var ErrNoReportSettings = errors.New("no report settings configured")

// StorageError wraps an underlying persistence failure with the operation
// that produced it. The original cause is always preserved for errors.Is
// and diagnostics; domain errors (not-found, validation) pass through
// without this wrapper.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

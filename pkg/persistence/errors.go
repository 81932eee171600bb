// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRecordNotFound indicates no record is stored under the given key.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRevisionConflict indicates a compare-and-swap lost against a concurrent writer.
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrPersistenceWriteFailed indicates a write kept failing after all retries.
	ErrPersistenceWriteFailed = errors.New("persistence write failed")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid record id")
)

// RecordError wraps record-related errors with additional context.
type RecordError struct {
	Op         string     // Operation being performed (e.g., "Get", "Put", "List")
	Collection Collection // Collection the record belongs to
	ID         string     // Record ID if applicable
	Err        error      // Underlying error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Collection, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op string, collection Collection, id string, err error) *RecordError {
	return &RecordError{
		Op:         op,
		Collection: collection,
		ID:         id,
		Err:        err,
	}
}

// IsNotFound checks if an error indicates a record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsRevisionConflict checks if an error indicates a lost compare-and-swap.
func IsRevisionConflict(err error) bool {
	return errors.Is(err, ErrRevisionConflict)
}

// IsWriteFailed checks if an error indicates an exhausted write.
func IsWriteFailed(err error) bool {
	return errors.Is(err, ErrPersistenceWriteFailed)
}

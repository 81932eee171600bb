package engine

import (
	"errors"
	"fmt"

	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/services"
)

var (
	ErrDefinitionNotFound     = services.ErrDefinitionNotFound
	ErrPersistenceWriteFailed = persistence.ErrPersistenceWriteFailed

	ErrInstanceNotFound   = errors.New("workflow instance not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidDecision    = errors.New("invalid decision")
	ErrInvalidTransition  = errors.New("invalid instance transition")
	ErrEntityTypeMismatch = errors.New("entity type does not match workflow definition")
	ErrTooManyConflicts   = errors.New("instance kept changing concurrently")

	// errAlreadyApplied is returned by a transition that finds its own
	// change already committed.
	errAlreadyApplied = errors.New("transition already committed")
)

// InstanceError carries the operation and instance an error happened on.
type InstanceError struct {
	Op  string
	ID  string
	Err error
}

func (e *InstanceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newInstanceError(op, id string, err error) *InstanceError {
	return &InstanceError{Op: op, ID: id, Err: err}
}

// IsNotFound reports errors that should surface as "not found" to callers.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound) || errors.Is(err, ErrDefinitionNotFound)
}

// IsValidationError reports errors caused by a malformed request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrEntityTypeMismatch)
}

// IsConflictError reports requests that are well formed but not allowed in
// the instance's current state.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrTooManyConflicts)
}

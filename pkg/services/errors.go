// Package services provides the definition catalogue and its error taxonomy.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidSortField     = errors.New("invalid sort field")
	ErrInvalidSortOrder     = errors.New("invalid sort order")
	ErrInvalidEntityType    = errors.New("invalid entity type")
	ErrDefinitionNil        = errors.New("definition cannot be nil")
	ErrDuplicateStepID      = errors.New("step IDs must be unique")
	ErrDuplicateStepOrder   = errors.New("step orders must be unique")
	ErrStepWithoutAssignees = errors.New("step must have assignees or roles")

	// Not Found (404).
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// Business Logic Conflicts (409 Conflict).
	ErrDefinitionExists   = errors.New("workflow definition already exists")
	ErrDefinitionInactive = errors.New("workflow definition is inactive")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidEntityType) ||
		errors.Is(err, ErrDefinitionNil) ||
		errors.Is(err, ErrDuplicateStepID) ||
		errors.Is(err, ErrDuplicateStepOrder) ||
		errors.Is(err, ErrStepWithoutAssignees)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDefinitionExists) ||
		errors.Is(err, ErrDefinitionInactive)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

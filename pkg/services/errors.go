// Package services provides the workflow definition service used by the API
// and the command line.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrWorkflowNil         = errors.New("workflow cannot be nil")
	ErrTriggerNodeRequired = errors.New("workflow must have at least one trigger node")
	ErrInvalidGraph        = errors.New("invalid workflow graph")
	ErrInvalidNode         = errors.New("invalid workflow node")
	ErrIDMismatch          = errors.New("workflow id does not match path")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowExists = errors.New("workflow already exists")
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

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrTriggerNodeRequired) ||
		errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrInvalidNode) ||
		errors.Is(err, ErrIDMismatch)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowExists)
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

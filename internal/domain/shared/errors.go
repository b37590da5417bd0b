// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrInvalidFormat = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")
	ErrCapacity     = errors.New("capacity exceeded")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrOptimisticLock = errors.New("optimistic lock failure")
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "run", "enrollment", "workgroup"
	Op      string // Operation that failed, e.g., "Enroll", "Launch"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Run domain errors
var (
	ErrRunNotFound    = NewDomainError("run", "Find", ErrNotFound, "run not found")
	ErrPeriodNotFound = NewDomainError("run", "FindPeriod", ErrNotFound, "period not found in run")
	ErrRunHasEnded    = NewDomainError("run", "CheckLifecycle", ErrExpired, "run has ended")
	ErrInvalidRuncode = NewDomainError("run", "Validate", ErrInvalidFormat, "invalid runcode")
)

// User domain errors
var (
	ErrUserNotFound      = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
	ErrNotAStudent       = NewDomainError("user", "CheckRole", ErrInvalidState, "user is not a student")
	ErrNotATeacher       = NewDomainError("user", "CheckRole", ErrInvalidState, "user is not a teacher")
)

// Enrollment domain errors
var (
	ErrAlreadyEnrolled   = NewDomainError("enrollment", "Enroll", ErrAlreadyExists, "student already associated with run")
	ErrNotEnrolled       = NewDomainError("enrollment", "Check", ErrNotFound, "student not associated with run")
	ErrEnrollmentFailed  = NewDomainError("enrollment", "Enroll", ErrRetryExhausted, "failed to add student to run")
	ErrWriteConflict     = NewDomainError("enrollment", "Enroll", ErrOptimisticLock, "concurrent enrollment write conflict")
	ErrInvalidEnrollment = NewDomainError("enrollment", "Validate", ErrInvalidInput, "invalid enrollment key")
)

// Workgroup domain errors
var (
	ErrWorkgroupNotFound = NewDomainError("workgroup", "Find", ErrNotFound, "workgroup not found")
	ErrCapacityExceeded  = NewDomainError("workgroup", "AddMembers", ErrCapacity, "too many members in workgroup")
	ErrActingUserNotAssociated = NewDomainError("workgroup", "Create", ErrForbidden,
		"signed-in user is not associated with run")
)

// Attendance domain errors
var (
	ErrAttendanceNotFound = NewDomainError("attendance", "Find", ErrNotFound, "attendance entry not found")
	ErrAttendanceWrite    = NewDomainError("attendance", "Record", ErrExternalService, "failed to record attendance")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsWriteConflict reports whether the error is a transient optimistic-version
// mismatch that the caller may retry. Business-rule violations never match.
func IsWriteConflict(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrInvalidFormat)
}

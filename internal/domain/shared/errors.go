// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
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
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Quota errors
	ErrQuotaExceeded = errors.New("quota exceeded")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Storage and external service errors
	ErrStorageFailure     = errors.New("storage failure")
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "quota", "progress", "stats"
	Op      string // Operation that failed, e.g., "Reserve", "Recompute"
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

// Quota domain errors
var (
	ErrQuotaNotFound  = NewDomainError("quota", "Find", ErrNotFound, "usage quota not found")
	ErrUnknownRole    = NewDomainError("quota", "Validate", ErrInvalidInput, "unknown user role")
	ErrInvalidAmount  = NewDomainError("quota", "Reserve", ErrValueOutOfRange, "amount must be positive")
	ErrInvalidKind    = NewDomainError("quota", "Reserve", ErrInvalidInput, "unknown usage kind")
	ErrQuotaReadOnly  = NewDomainError("quota", "Mutate", ErrInvalidState, "quota rows are never deleted or rewritten")
	ErrRoleUnresolved = NewDomainError("quota", "ResolveRole", ErrExternalService, "role provider unavailable")
)

// Progress domain errors
var (
	ErrStepNotFound        = NewDomainError("progress", "FindStep", ErrNotFound, "step progress not found")
	ErrRoadmapNotFound     = NewDomainError("progress", "FindRoadmap", ErrNotFound, "roadmap progress not found")
	ErrEnrollmentExists    = NewDomainError("progress", "Enroll", ErrAlreadyExists, "user already enrolled in roadmap")
	ErrInvalidPercentage   = NewDomainError("progress", "UpdateProgress", ErrValueOutOfRange, "percentage must be in [0,100]")
	ErrNegativeStudyHours  = NewDomainError("progress", "AddStudyTime", ErrNegativeValue, "study hours must be non-negative")
	ErrRoadmapNotResumable = NewDomainError("progress", "Resume", ErrStateTransition, "only paused roadmaps can be resumed")
	ErrRoadmapCompleted    = NewDomainError("progress", "Mutate", ErrStateTransition, "completed roadmap cannot change status")
)

// Stats domain errors
var (
	ErrStatNotFound      = NewDomainError("stats", "Find", ErrNotFound, "daily stat not found")
	ErrNegativeDuration  = NewDomainError("stats", "Apply", ErrNegativeValue, "duration must be non-negative")
	ErrUnknownActivity   = NewDomainError("stats", "Apply", ErrInvalidInput, "unknown activity type")
	ErrStreakNotEligible = NewDomainError("stats", "Streak", ErrInvalidState, "day is not active yet")
)

// Activity domain errors
var (
	ErrInvalidUserID       = NewDomainError("activity", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidActivityType = NewDomainError("activity", "Validate", ErrInvalidInput, "unknown activity type")
	ErrMissingTarget       = NewDomainError("activity", "Validate", ErrInvalidInput, "activity requires a target")
)

// WrapStorage wraps a storage-layer error as a retryable storage failure.
func WrapStorage(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStorageFailure, "storage operation failed", err)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuotaExceeded checks if the error is a quota denial.
// Quota denials are recoverable and user-facing, never fatal.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
// Storage failures and lost-update conflicts are retryable; quota denials
// and validation errors are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}

/*
errors.go - Centralized error types for the lesson ledger

PURPOSE:
  All domain error types in one place. The API layer maps them to HTTP
  status codes; services and stores only ever return these (or wrap
  infrastructure errors with %w).

ERROR CATEGORIES:
  1. NotFound           - record absent, soft-deleted, or another teacher's
  2. Conflict           - lesson overlaps an existing one
  3. InsufficientCredit - credit-funded request exceeds the student's credits
  4. InvalidTransition  - lesson status change not allowed
  5. Validation         - malformed input
  6. Unauthorized       - bad credentials or token

SEE ALSO:
  - api/errors.go: HTTP mapping
*/
package ledger

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound           = errors.New("not found")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInvalidTransition  = errors.New("invalid lesson status transition")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmailTaken         = errors.New("email already registered")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the kind of record that could not be resolved.
type NotFoundError struct {
	Kind string // "student", "lesson", "payment", "settings"
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// ConflictError reports the first occurrence of a batch that collides.
type ConflictError struct {
	At               time.Time
	Occurrence       int // 1-based position within the requested series
	ExistingLessonID LessonID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduling conflict: a lesson already exists at %s", e.At.Format("02.01.2006 15:04"))
}

func (e *ConflictError) Unwrap() error { return ErrSchedulingConflict }

type InsufficientCreditError struct {
	StudentID StudentID
	Required  int
	Available int
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }

type InvalidTransitionError struct {
	LessonID LessonID
	From     LessonStatus
	To       LessonStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lesson %s cannot move from %s to %s", e.LessonID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, message string) error { return &ValidationError{Field: field, Message: message} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSchedulingConflict) ||
		errors.Is(err, ErrInsufficientCredit) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEmailTaken)
}

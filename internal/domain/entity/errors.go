package entity

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the workflow engine
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindTransition   ErrorKind = "transition"
	KindCollaborator ErrorKind = "collaborator"
	KindNotification ErrorKind = "notification"
)

// Error is the typed error returned by application services.
// Fields carries per-field messages for validation failures.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error with a human-readable message
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewFieldError creates a validation error keyed by field name
func NewFieldError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// NewNotFoundError creates a not-found error for the given resource and id
func NewNotFoundError(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// NewTransitionError creates an error for an action attempted from the wrong prior state
func NewTransitionError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransition, Message: fmt.Sprintf(format, args...)}
}

// NewCollaboratorError wraps a row-store or external failure during a core write
func NewCollaboratorError(op string, err error) *Error {
	return &Error{Kind: KindCollaborator, Message: op, Err: err}
}

// KindOf returns the kind of err. Untyped errors are treated as collaborator failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindCollaborator
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Package apperr defines the failures returned by the progress, assessment and
// enrollment services.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidRole
	KindAlreadyEnrolled
	KindDuplicateRequest
	KindPreviouslyRejected
	KindNotPending
	KindValidation
	KindAttemptsExceeded
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidRole:
		return "invalid_role"
	case KindAlreadyEnrolled:
		return "already_enrolled"
	case KindDuplicateRequest:
		return "duplicate_request"
	case KindPreviouslyRejected:
		return "previously_rejected"
	case KindNotPending:
		return "not_pending"
	case KindValidation:
		return "validation_error"
	case KindAttemptsExceeded:
		return "attempts_exceeded"
	}
	return "unknown"
}

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidRole        = &Error{Kind: KindInvalidRole}
	ErrAlreadyEnrolled    = &Error{Kind: KindAlreadyEnrolled}
	ErrDuplicateRequest   = &Error{Kind: KindDuplicateRequest}
	ErrPreviouslyRejected = &Error{Kind: KindPreviouslyRejected}
	ErrNotPending         = &Error{Kind: KindNotPending}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrAttemptsExceeded   = &Error{Kind: KindAttemptsExceeded}
)

func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return New(KindNotFound, format, args...)
}

func InvalidRole(format string, args ...interface{}) error {
	return New(KindInvalidRole, format, args...)
}

func Validation(msg string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FieldsOf returns the field details of a validation error, if any.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Package domain holds the error vocabulary shared by the service layer and
// the HTTP layer. Services return these; handlers map the kind to a status.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how a caller should react to it.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindConflict     Kind = "CONFLICT"
	KindInternal     Kind = "INTERNAL_ERROR"
)

// DomainError carries a Kind and a message that is safe to show to clients,
// except for KindInternal whose cause stays server-side.
type DomainError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) error {
	return &DomainError{Kind: kind, Message: msg}
}

func NewNotFoundError(resource string) error {
	return newError(KindNotFound, resource+" not found")
}

func NewValidationError(msg string) error   { return newError(KindValidation, msg) }
func NewUnauthorizedError(msg string) error { return newError(KindUnauthorized, msg) }
func NewForbiddenError(msg string) error    { return newError(KindForbidden, msg) }
func NewConflictError(msg string) error     { return newError(KindConflict, msg) }

// NewInternalError wraps an infrastructure failure behind a generic message.
func NewInternalError(err error) error {
	return &DomainError{Kind: KindInternal, Message: "An internal error occurred", Err: err}
}

// KindOf returns the kind of the first DomainError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Is reports whether err is a non-nil error of kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsNotFound(err error) bool     { return Is(err, KindNotFound) }
func IsValidation(err error) bool   { return Is(err, KindValidation) }
func IsConflict(err error) bool     { return Is(err, KindConflict) }
func IsUnauthorized(err error) bool { return Is(err, KindUnauthorized) }
func IsForbidden(err error) bool    { return Is(err, KindForbidden) }

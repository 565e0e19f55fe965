package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, shared.ErrNotFound) holds for wrapped and re-messaged copies.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of the error carrying cause
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, cause: cause}
}

// WithMessage returns a copy of the error with a more specific message
func (e *DomainError) WithMessage(message string) *DomainError {
	return &DomainError{Code: e.Code, Message: message, cause: e.cause}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes shared across bounded contexts
const (
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeConflict         = "CONFLICT"
	CodeInvalidState     = "INVALID_STATE"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
)

// Common domain errors
var (
	ErrNotFound         = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists    = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput     = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrConflict         = NewDomainError(CodeConflict, "Resource could not be created without conflict")
	ErrInvalidState     = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrStoreUnavailable = NewDomainError(CodeStoreUnavailable, "Persistence layer is unavailable")
	ErrUnauthorized     = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrForbidden        = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
)

// IsAccessDenial reports whether err should be presented to an unauthenticated
// caller as a plain access denial. NotFound and InvalidState are not distinguished
// so the response does not reveal which licenses or products exist.
func IsAccessDenial(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState)
}

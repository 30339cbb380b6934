package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind categorizes an error for callers that map it to a status.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is a categorized sentinel error. Compare with [errors.Is].
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(k Kind, msg string) *Error {
	return &Error{Kind: k, msg: msg}
}

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Runtime errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrUnknownBackend     = fmt.Errorf("unknown backend")

	// Input errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")

	ErrUnauthorized = newError(KindUnauthorized, "unauthorized")

	// Not found
	ErrNoSuchPhonebook = newError(KindNotFound, "no such phonebook")
	ErrNoSuchContact   = newError(KindNotFound, "no such contact")
	ErrNoSuchFavorite  = newError(KindNotFound, "no such favorite")
	ErrNoSuchProfile   = newError(KindNotFound, "no such profile")
	ErrNoSuchSource    = newError(KindNotFound, "no such source")

	// Validation
	ErrInvalidPersonalContact = newError(KindValidation, "invalid personal contact")
	ErrInvalidPhonebook       = newError(KindValidation, "invalid phonebook")
	ErrInvalidContact         = newError(KindValidation, "invalid contact")
	ErrInvalidTenant          = newError(KindValidation, "invalid tenant")
	ErrInvalidOrder           = newError(KindValidation, "invalid order")
	ErrInvalidDirection       = newError(KindValidation, "invalid direction")
	ErrInvalidSource          = newError(KindValidation, "invalid source")

	// Conflicts
	ErrDuplicatedPhonebook = newError(KindConflict, "duplicated phonebook")
	ErrDuplicatedContact   = newError(KindConflict, "duplicated contact")
	ErrDuplicatedFavorite  = newError(KindConflict, "duplicated favorite")
	ErrDuplicatedSource    = newError(KindConflict, "duplicated source")
)

// ValidationError carries every rule an input violated.
type ValidationError struct {
	Err        error
	Violations []string
}

// NewValidationError wraps a validation sentinel with its violations.
func NewValidationError(err error, violations ...string) *ValidationError {
	return &ValidationError{Err: err, Violations: violations}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error { return e.Err }

// KindOf returns the category of err, [KindInternal] when uncategorized.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Violations returns the violated rules carried by err, if any.
func Violations(err error) []string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Violations
	}
	return nil
}

// StatusCode maps err to the equivalent HTTP status.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

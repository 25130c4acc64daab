package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConflict      ErrorKind = "conflict"
	KindAuthorization ErrorKind = "authorization"
	KindPayment       ErrorKind = "payment"
	KindNotFound      ErrorKind = "not_found"
	KindState         ErrorKind = "state"
)

// Wire codes returned by the HTTP layer.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeBookingConflict = "BOOKING_CONFLICT"
	CodeConflict        = "CONFLICT"
	CodeForbidden       = "FORBIDDEN"
	CodePaymentFailed   = "PAYMENT_FAILED"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL"
)

// Error is the typed error every service operation returns for expected failures.
type Error struct {
	Kind      ErrorKind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(code string, err error, format string, args ...any) *Error {
	if code == "" {
		code = CodeConflict
	}
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func Payment(err error, retryable bool, format string, args ...any) *Error {
	return &Error{
		Kind:      KindPayment,
		Code:      CodePaymentFailed,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryable,
		Err:       err,
	}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func State(format string, args ...any) *Error {
	return &Error{Kind: KindState, Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in the chain, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

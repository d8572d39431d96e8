// Package errs defines the error taxonomy shared by every akron backend.
//
// All failures surfaced by the library are *Error values carrying a Code.
// Engine-native errors are wrapped at the driver-adapter boundary and stay
// reachable through errors.Unwrap; raw driver errors never escape on their
// own.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes an error.
type Code string

const (
	// CodeTableNotFound indicates the target table or collection does not exist.
	CodeTableNotFound Code = "TABLE_NOT_FOUND"

	// CodeInvalidOperator indicates an unrecognized filter operator suffix
	// or a value whose shape does not match the operator.
	CodeInvalidOperator Code = "INVALID_OPERATOR"

	// CodeInvalidArgument indicates a malformed builder argument
	// (negative limit, zero page, empty field list).
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeUnsupportedOperation indicates the selected backend cannot express
	// the requested query form. Never silently approximated.
	CodeUnsupportedOperation Code = "UNSUPPORTED_OPERATION"

	// CodeTransactionState indicates a transaction state-machine violation
	// (begin while active, commit while inactive, ...).
	CodeTransactionState Code = "TRANSACTION_STATE"

	// CodeQueryExecuted indicates a second terminal call on a builder whose
	// query already ran.
	CodeQueryExecuted Code = "QUERY_EXECUTED"

	// CodeConstraintViolation indicates a uniqueness or foreign-key failure
	// reported by the engine.
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"

	// CodeConnection indicates a failure establishing or using the
	// underlying connection.
	CodeConnection Code = "CONNECTION"

	// CodeInternal is the catch-all for engine errors with no more
	// specific classification.
	CodeInternal Code = "INTERNAL"
)

// Error is the uniform error value returned by akron.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Err is the original engine-native error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the engine-native cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an engine-native cause. A nil err returns a
// nil error interface, so call sites can wrap unconditionally.
func Wrap(code Code, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the Code carried by err, or CodeInternal when err is not
// an akron error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// is reports whether err carries the given code. Handles wrapped errors.
func is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsTableNotFound reports whether err is a missing-table error.
func IsTableNotFound(err error) bool { return is(err, CodeTableNotFound) }

// IsInvalidOperator reports whether err is an operator grammar or
// value-shape error.
func IsInvalidOperator(err error) bool { return is(err, CodeInvalidOperator) }

// IsInvalidArgument reports whether err is a builder argument error.
func IsInvalidArgument(err error) bool { return is(err, CodeInvalidArgument) }

// IsUnsupportedOperation reports whether err is a backend capability error.
func IsUnsupportedOperation(err error) bool { return is(err, CodeUnsupportedOperation) }

// IsTransactionState reports whether err is a transaction state-machine error.
func IsTransactionState(err error) bool { return is(err, CodeTransactionState) }

// IsQueryExecuted reports whether err is a repeated-terminal-call error.
func IsQueryExecuted(err error) bool { return is(err, CodeQueryExecuted) }

// IsConstraintViolation reports whether err is a uniqueness or foreign-key
// failure.
func IsConstraintViolation(err error) bool { return is(err, CodeConstraintViolation) }

package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a kite error. Primary codes occupy the low byte;
// extended codes add detail in the second byte, so masking with 0xff
// recovers the primary code.
type ErrorCode int

const (
	KT_OK         ErrorCode = 0  // no error
	KT_ERROR      ErrorCode = 1  // generic error
	KT_INTERNAL   ErrorCode = 2  // internal invariant broken
	KT_ABORT      ErrorCode = 4  // execution aborted by callback or Halt
	KT_READONLY   ErrorCode = 8  // write attempted on a read cursor
	KT_INTERRUPT  ErrorCode = 9  // caller-requested cancellation
	KT_IOERR      ErrorCode = 10 // storage layer failure
	KT_NOTFOUND   ErrorCode = 12 // named object (savepoint, tree) missing
	KT_PROGRAM    ErrorCode = 15 // program-construction error
	KT_CONSTRAINT ErrorCode = 19 // constraint violation
	KT_MISUSE     ErrorCode = 21 // API or operand contract violated
	KT_RANGE      ErrorCode = 25 // register/cursor index out of range
)

// Extended constraint codes.
const (
	KT_CONSTRAINT_CHECK      = KT_CONSTRAINT | (1 << 8)
	KT_CONSTRAINT_FOREIGNKEY = KT_CONSTRAINT | (3 << 8)
	KT_CONSTRAINT_NOTNULL    = KT_CONSTRAINT | (5 << 8)
	KT_CONSTRAINT_PRIMARYKEY = KT_CONSTRAINT | (6 << 8)
	KT_CONSTRAINT_UNIQUE     = KT_CONSTRAINT | (8 << 8)
)

var codeNames = map[ErrorCode]string{
	KT_OK:                    "KT_OK",
	KT_ERROR:                 "KT_ERROR",
	KT_INTERNAL:              "KT_INTERNAL",
	KT_ABORT:                 "KT_ABORT",
	KT_READONLY:              "KT_READONLY",
	KT_INTERRUPT:             "KT_INTERRUPT",
	KT_IOERR:                 "KT_IOERR",
	KT_NOTFOUND:              "KT_NOTFOUND",
	KT_PROGRAM:               "KT_PROGRAM",
	KT_CONSTRAINT:            "KT_CONSTRAINT",
	KT_MISUSE:                "KT_MISUSE",
	KT_RANGE:                 "KT_RANGE",
	KT_CONSTRAINT_CHECK:      "KT_CONSTRAINT_CHECK",
	KT_CONSTRAINT_FOREIGNKEY: "KT_CONSTRAINT_FOREIGNKEY",
	KT_CONSTRAINT_NOTNULL:    "KT_CONSTRAINT_NOTNULL",
	KT_CONSTRAINT_PRIMARYKEY: "KT_CONSTRAINT_PRIMARYKEY",
	KT_CONSTRAINT_UNIQUE:     "KT_CONSTRAINT_UNIQUE",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("KT_UNKNOWN(%d)", int(c))
}

// Primary strips any extended detail from the code.
func (c ErrorCode) Primary() ErrorCode { return c & 0xff }

// Error is a structured kite error carrying an error code, a human-readable
// message, and an optional wrapped underlying error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped underlying error (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches target. Two *Error values match
// when their primary codes are equal.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code.Primary() == t.Code.Primary()
	}
	return false
}

// New creates a new *Error with the given code and message.
func New(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Errorf creates a new *Error with the given code and a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new *Error with the given code wrapping err.
func Wrap(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the ErrorCode of err: KT_OK for nil, the code of any
// *Error in the chain, or KT_ERROR for any other non-nil error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return KT_OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return KT_ERROR
}

// IsCode reports whether err carries the given primary error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err).Primary() == code.Primary()
}

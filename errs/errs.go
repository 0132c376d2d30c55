// Package errs defines the engine's error taxonomy. Every operation that
// can fail returns an *Error carrying one of the Code values below, so
// callers can distinguish (for example) a wrong key from disk corruption
// without parsing message strings.
package errs

import "fmt"

// Code identifies the category of a failure.
type Code string

const (
	IOError           Code = "IO_ERROR"
	AuthFailed        Code = "AUTH_FAILED"
	FormatError       Code = "FORMAT_ERROR"
	ValidationError   Code = "VALIDATION_ERROR"
	LockTimeout       Code = "LOCK_TIMEOUT"
	UniqueViolation   Code = "UNIQUE_VIOLATION"
	NotFound          Code = "NOT_FOUND"
	TxnNotFound       Code = "TXN_NOT_FOUND"
	StateError        Code = "STATE_ERROR"
	IntegrityError    Code = "INTEGRITY_ERROR"
)

// Error is the concrete error type returned by every package in this
// module. Op names the failing operation; Err, when present, is the
// underlying cause and is never nil secret material (keys/plaintext are
// never embedded in error messages).
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.AuthFailed) style checks by comparing
// codes rather than pointer identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

func IOErr(op string, cause error) *Error         { return New(IOError, op, cause) }
func AuthFail(op string, cause error) *Error       { return New(AuthFailed, op, cause) }
func FormatErr(op string, cause error) *Error      { return New(FormatError, op, cause) }
func ValidationErr(op string, cause error) *Error  { return New(ValidationError, op, cause) }
func LockTimeoutErr(op string, cause error) *Error { return New(LockTimeout, op, cause) }
func UniqueViolationErr(op string, cause error) *Error {
	return New(UniqueViolation, op, cause)
}
func NotFoundErr(op string, cause error) *Error    { return New(NotFound, op, cause) }
func TxnNotFoundErr(op string, cause error) *Error { return New(TxnNotFound, op, cause) }
func StateErr(op string, cause error) *Error       { return New(StateError, op, cause) }
func IntegrityErr(op string, cause error) *Error   { return New(IntegrityError, op, cause) }

// CodeOf extracts the Code of err if it (or something it wraps) is an
// *Error, otherwise returns the empty Code.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}

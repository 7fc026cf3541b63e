// Package errors defines the error kinds shared by the pilot-sub-proxy
// operations. Every public operation fails with an *OperationError carrying
// the operation name, an operation-specific negative code, and one of the
// kinds below. Codes are only meaningful within one operation's code space.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind string

const (
	// KindConfig is a missing environment variable or framework argument.
	KindConfig Kind = "CONFIG"
	// KindInput is an unknown lock type or a nil required input.
	KindInput Kind = "INPUT"
	// KindPrivilege is an identity drop or raise failure.
	KindPrivilege Kind = "PRIVILEGE"
	// KindIO is an open, stat, read, or short-read failure.
	KindIO Kind = "IO"
	// KindLock is an unobtainable or unsupported advisory lock.
	KindLock Kind = "LOCK"
	// KindPermission is unsafe ownership or mode bits on a credential file.
	// Security-relevant: never downgraded, never retried.
	KindPermission Kind = "PERMISSION"
	// KindMemory is a credential file exceeding the allocation cap.
	KindMemory Kind = "MEMORY"
	// KindTooManyRetries is a file still changing after the retry budget.
	// Distinguishes transient contention from corrupt input for operators.
	KindTooManyRetries Kind = "TOO_MANY_RETRIES"
	// KindParse is malformed or empty credential material.
	KindParse Kind = "PARSE"
	// KindTrust is a signature mismatch or missing key. Security-relevant.
	KindTrust Kind = "TRUST"
)

// OperationError is the failure result of a public operation.
type OperationError struct {
	Op      string
	Code    int
	Kind    Kind
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s, code %d): %v", e.Op, e.Message, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s, code %d)", e.Op, e.Message, e.Kind, e.Code)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is matches any OperationError of the same kind, so callers can use
// errors.Is with a kind sentinel without caring about op or code.
func (e *OperationError) Is(target error) bool {
	var oe *OperationError
	if stderrors.As(target, &oe) {
		return oe.Kind == e.Kind && (oe.Op == "" || oe.Op == e.Op)
	}
	return false
}

// New creates an OperationError.
func New(op string, code int, kind Kind, message string) *OperationError {
	return &OperationError{Op: op, Code: code, Kind: kind, Message: message}
}

// Wrap creates an OperationError around an underlying cause.
func Wrap(op string, code int, kind Kind, message string, err error) *OperationError {
	return &OperationError{Op: op, Code: code, Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or the empty string when err is not an
// OperationError.
func KindOf(err error) Kind {
	var oe *OperationError
	if stderrors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

// CodeOf returns the operation-specific code of err, or 0 when err is not
// an OperationError. Success is never represented as an error, so 0 is
// unambiguous.
func CodeOf(err error) int {
	var oe *OperationError
	if stderrors.As(err, &oe) {
		return oe.Code
	}
	return 0
}

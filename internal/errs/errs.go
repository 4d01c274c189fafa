// Package errs provides the POSIX-style structured error type shared by
// every internal package, so the root ikc package can re-export a single
// consistent error surface (spec.md §6, §7) without an import cycle.
package errs

import (
	"errors"
	"fmt"
)

// Code is a POSIX-style error code (spec.md §6).
type Code string

const (
	CodeInvalid  Code = "EINVAL"
	CodeBusy     Code = "EBUSY"
	CodeAgain    Code = "EAGAIN"
	CodeAccess   Code = "EACCES"
	CodeNoMsg    Code = "ENOMSG"
	CodeTimedOut Code = "ETIMEDOUT"
	CodeProto    Code = "EPROTO"
	CodePerm     Code = "EPERM"
	CodeDeadlock Code = "EDEADLK"
	CodeBadFd    Code = "EBADF"
	CodeNotSupp  Code = "ENOTSUP"
	CodeFault    Code = "EFAULT"
	CodeNone     Code = ""
)

// transient is the set of raw-kernel return codes the flow engine retries
// internally instead of surfacing to the caller (spec.md §9 "Error retries
// as data, not control flow").
var transient = map[Code]bool{
	CodeBusy:     true,
	CodeAgain:    true,
	CodeAccess:   true,
	CodeNoMsg:    true,
	CodeTimedOut: true,
}

// IsTransient reports whether code should be retried by the flow engine
// rather than surfaced to the caller.
func IsTransient(code Code) bool {
	return transient[code]
}

// Error is a structured error with context, mirroring the teacher's
// *Error type but keyed on the spec's POSIX Code subset rather than
// syscall.Errno.
type Error struct {
	Op    string
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("ikc: %s: %s (%s)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("ikc: %s (%s)", msg, e.Code)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// New creates a structured error for op with the given code.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps inner with a structured error, preserving its code if it
// is already one of ours.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ie *Error
	if errors.As(inner, &ie) {
		return &Error{Op: op, Code: ie.Code, Msg: ie.Msg, Inner: ie.Inner}
	}
	return &Error{Op: op, Code: CodeFault, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err (or something it wraps) carries code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Errno returns a negative POSIX-style "errno" integer for code, the shape
// every user-facing API in this module returns on failure instead of a
// byte count (spec.md §7 "User-visible behavior").
func Errno(code Code) int32 {
	switch code {
	case CodeInvalid:
		return -22
	case CodeBusy:
		return -16
	case CodeAgain:
		return -11
	case CodeAccess:
		return -13
	case CodeNoMsg:
		return -42
	case CodeTimedOut:
		return -110
	case CodeProto:
		return -71
	case CodePerm:
		return -1
	case CodeDeadlock:
		return -35
	case CodeBadFd:
		return -9
	case CodeNotSupp:
		return -95
	case CodeFault:
		return -14
	default:
		return -1
	}
}

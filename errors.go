package ikc

import "github.com/nanvix-go/ikc/internal/errs"

// Code is a POSIX-style error code (spec.md §6), used throughout the core
// instead of syscall.Errno since the raw kernel-call shim is external and
// returns bare negative integers. Re-exported from internal/errs so every
// internal package can share one error type without an import cycle
// through the root package, the same way the teacher's constants.go
// re-exports internal/constants.
type Code = errs.Code

const (
	CodeInvalid  = errs.CodeInvalid
	CodeBusy     = errs.CodeBusy
	CodeAgain    = errs.CodeAgain
	CodeAccess   = errs.CodeAccess
	CodeNoMsg    = errs.CodeNoMsg
	CodeTimedOut = errs.CodeTimedOut
	CodeProto    = errs.CodeProto
	CodePerm     = errs.CodePerm
	CodeDeadlock = errs.CodeDeadlock
	CodeBadFd    = errs.CodeBadFd
	CodeNotSupp  = errs.CodeNotSupp
	CodeFault    = errs.CodeFault
	CodeNone     = errs.CodeNone
)

// Error is a structured error with context: the operation that failed, a
// POSIX-style code, a human-readable message, and an optionally wrapped
// inner error.
type Error = errs.Error

// IsTransient reports whether code should be retried by the flow engine
// rather than surfaced to the caller (spec.md §9).
func IsTransient(code Code) bool { return errs.IsTransient(code) }

// NewError creates a structured error for op with the given code.
func NewError(op string, code Code, msg string) *Error { return errs.New(op, code, msg) }

// WrapError wraps inner with a structured error, preserving its code if it
// is already one of ours.
func WrapError(op string, inner error) *Error { return errs.WrapError(op, inner) }

// IsCode reports whether err (or something it wraps) carries code.
func IsCode(err error, code Code) bool { return errs.IsCode(err, code) }

// AsErrno returns a negative POSIX-style "errno" integer for code — the
// shape every user-facing API in this package returns on failure instead
// of a byte count (spec.md §7 "User-visible behavior").
func AsErrno(code Code) int32 { return errs.Errno(code) }

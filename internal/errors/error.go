// Package errors provides the core's structured error type. Every
// public fallible operation returns either nil or an *Error carrying
// one of the ERR_* kinds; internal invariant violations panic instead
// (see LogicError), per spec.md §7.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Error is the core's structured error. It wraps an optional
// underlying error and carries a stable, comparable Code so callers
// can switch on error kind without string matching.
type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.WrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
}

// Is reports whether target carries the same Code, walking the wrap chain.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var ue *Error
	if stderrors.As(target, &ue) && e.Code == ue.Code {
		return true
	}
	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an *Error. If the last element of args is an error, it is
// removed from the format arguments and stored as the wrapped error.
func New(code ERR, format string, args ...interface{}) *Error {
	var wrapped error
	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			wrapped = err
			args = args[:n-1]
		}
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Code: code, Message: msg, WrappedErr: wrapped}
}

// GRPCCode maps a core ERR to the closest-fitting gRPC status code,
// for components that surface errors across a gRPC boundary.
func GRPCCode(code ERR) codes.Code {
	switch code {
	case ERR_INVALID_ARGUMENT:
		return codes.InvalidArgument
	case ERR_NOT_FOUND:
		return codes.NotFound
	case ERR_ALREADY_EXISTS:
		return codes.AlreadyExists
	case ERR_FAILED_PRECONDITION:
		return codes.FailedPrecondition
	case ERR_THRESHOLD_EXCEEDED:
		return codes.ResourceExhausted
	case ERR_UNKNOWN:
		return codes.Unknown
	default:
		return codes.Internal
	}
}

// Is reports whether err's chain contains an *Error whose Code matches
// target's Code.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// LogicError panics with an internal invariant violation. Reserved for
// conditions spec.md documents as "fatal logic errors" (e.g. a reorg
// walk that never finds a common ancestor) — never for recoverable,
// caller-facing failures.
func LogicError(format string, args ...interface{}) {
	panic(fmt.Sprintf("logic error: "+format, args...))
}

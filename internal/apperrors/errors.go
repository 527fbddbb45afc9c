// Package apperrors defines the error kinds surfaced by the room chat core.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidArgument
	KindInvalidState
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Kind sentinels. errors.Is(err, ErrNotFound) holds for any *Error of that kind.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrTransient       = &Error{Kind: KindTransient}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches bare kind sentinels and identical values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return New(KindInvalidState, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func Transient(err error, format string, args ...any) *Error {
	return Wrap(KindTransient, err, format, args...)
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Package apperr carries the stable error kinds surfaced to callers.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindDuplicate         Kind = "DUPLICATE_RELATIONSHIP"
	KindCycle             Kind = "CYCLE_DETECTED"
	KindAlreadyTerminal   Kind = "ALREADY_TERMINAL"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindDatabase          Kind = "DATABASE_ERROR"
	KindStorage           Kind = "STORAGE_ERROR"
	KindInternal          Kind = "INTERNAL_ERROR"
	KindUnauthenticated   Kind = "UNAUTHENTICATED"
)

// Error is a kind plus a caller-safe message. Err holds the cause and is
// never shown to API callers for database, storage or internal kinds.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches bare kind sentinels such as ErrCycle.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrDuplicate         = &Error{Kind: KindDuplicate}
	ErrCycle             = &Error{Kind: KindCycle}
	ErrAlreadyTerminal   = &Error{Kind: KindAlreadyTerminal}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrDatabase          = &Error{Kind: KindDatabase}
	ErrStorage           = &Error{Kind: KindStorage}
	ErrInternal          = &Error{Kind: KindInternal}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...any) error { return New(KindValidation, format, args...) }
func NotFound(format string, args ...any) error   { return New(KindNotFound, format, args...) }
func Duplicate(format string, args ...any) error  { return New(KindDuplicate, format, args...) }
func Cycle(format string, args ...any) error      { return New(KindCycle, format, args...) }

func AlreadyTerminal(format string, args ...any) error {
	return New(KindAlreadyTerminal, format, args...)
}

func InvalidTransition(format string, args ...any) error {
	return New(KindInvalidTransition, format, args...)
}

// Database wraps a persistence failure unless err already carries a kind.
func Database(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindInternal, err, "request aborted")
	}
	return Wrap(KindDatabase, err, op)
}

func Storage(err error, op string) error {
	if err == nil {
		return nil
	}
	return Wrap(KindStorage, err, op)
}

// KindOf reports the kind carried by err, INTERNAL_ERROR for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Public returns the message safe to show a caller.
func Public(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal error"
	}
	switch ae.Kind {
	case KindDatabase:
		return "database error"
	case KindStorage:
		return "storage error"
	case KindInternal:
		return "internal error"
	}
	if ae.Message != "" {
		return ae.Message
	}
	return string(ae.Kind)
}

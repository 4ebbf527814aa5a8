// models/errors.go
package models

import (
	"errors"
	"fmt"
)

// ErrorKind categorises pipeline errors.
type ErrorKind string

const (
	KindNotFound             ErrorKind = "not_found"
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
	KindFetch                ErrorKind = "fetch"
	KindParse                ErrorKind = "parse"
	KindWrite                ErrorKind = "write"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration, Message: "invalid configuration"}
	ErrFetch                = &Error{Kind: KindFetch, Message: "fetch failed"}
	ErrParse                = &Error{Kind: KindParse, Message: "parse failed"}
	ErrWrite                = &Error{Kind: KindWrite, Message: "write failed"}
)

// Error is a pipeline error with a kind, a message and an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string // offending field, for configuration errors
	Cause   error
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Invalidf creates an InvalidConfiguration error for field.
func Invalidf(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidConfiguration, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind when target is a sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t == sentinelFor(t.Kind) || t.Message == e.Message)
}

func sentinelFor(k ErrorKind) *Error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindInvalidConfiguration:
		return ErrInvalidConfiguration
	case KindFetch:
		return ErrFetch
	case KindParse:
		return ErrParse
	case KindWrite:
		return ErrWrite
	}
	return nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Package apperrors classifies errors crossing the control dispatcher
// boundary into a closed set of kinds, so a handler can map any error
// straight to a reply frame instead of string-matching.
// Modeled on pkg/resilience's ClassifiedError/ErrorType split.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories a dispatcher reply can carry.
type Kind int

const (
	KindNone Kind = iota
	KindTransportExhausted
	KindInvalidPath
	KindNotFound
	KindMalformedFrame
	KindSessionMissing
	KindFatalIO
)

func (k Kind) String() string {
	switch k {
	case KindTransportExhausted:
		return "transport-exhausted"
	case KindInvalidPath:
		return "invalid-path"
	case KindNotFound:
		return "not-found"
	case KindMalformedFrame:
		return "malformed-frame"
	case KindSessionMissing:
		return "session-missing"
	case KindFatalIO:
		return "fatal-io"
	default:
		return "none"
	}
}

// Error wraps an underlying error with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf builds a Kind error directly from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to KindFatalIO for any
// error that was never explicitly classified — a log-and-continue
// catch-all.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindFatalIO
}

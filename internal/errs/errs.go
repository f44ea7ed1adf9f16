// Package errs defines the error-kind taxonomy used across the engine so
// the HTTP layer and the ingest/query pipelines can branch on error
// semantics instead of message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies how an error should propagate.
type Kind int

const (
	// InvalidRequest surfaces verbatim to the HTTP caller as 400.
	InvalidRequest Kind = iota
	// NotInitialized indicates internal misuse (a container or index used
	// before it was set up).
	NotInitialized
	// ExternalUnavailable indicates the embedder, LLM, or relational
	// backend is unreachable after retries.
	ExternalUnavailable
	// PersistenceCorrupt indicates a snapshot file failed to parse; it is
	// treated as absent.
	PersistenceCorrupt
	// Partial indicates a single session failed extraction during an
	// ingest batch; other sessions still proceed.
	Partial
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "InvalidRequest"
	case NotInitialized:
		return "NotInitialized"
	case ExternalUnavailable:
		return "ExternalUnavailable"
	case PersistenceCorrupt:
		return "PersistenceCorrupt"
	case Partial:
		return "Partial"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func Invalid(msg string) error               { return New(InvalidRequest, msg) }
func Invalidf(format string, a ...any) error  { return New(InvalidRequest, fmt.Sprintf(format, a...)) }
func NotInit(msg string) error                { return New(NotInitialized, msg) }
func Unavailable(msg string, err error) error { return Wrap(ExternalUnavailable, msg, err) }
func Corrupt(msg string, err error) error     { return Wrap(PersistenceCorrupt, msg, err) }
func PartialErr(msg string, err error) error  { return Wrap(Partial, msg, err) }

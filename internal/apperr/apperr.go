// Package apperr classifies failures so the HTTP surface can map them to status codes.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindProcessing Kind = iota
	KindValidation
	KindUnsupportedFormat
	KindEngineUnavailable
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindUnsupportedFormat:
		return "UnsupportedFormat"
	case KindEngineUnavailable:
		return "EngineUnavailable"
	case KindNotFound:
		return "NotFound"
	default:
		return "ProcessingError"
	}
}

// Error is a classified failure. Msg is what clients see.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Validation(msg string) error { return New(KindValidation, msg) }

func NotFound(msg string) error { return New(KindNotFound, msg) }

// KindOf returns the kind of the first classified error in the chain, or KindProcessing.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessing
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindUnsupportedFormat:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

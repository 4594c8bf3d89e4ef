// Package apperr defines the error taxonomy shared by all layers: every
// failure a handler can surface belongs to exactly one Kind, and each Kind
// maps to a fixed HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Validation Kind = iota // malformed input, unsupported source or join kind
	NotFound               // missing connection, job, task unit, table or page
	Conflict               // job already running, task unit not in progress
	Upstream               // probe or introspection failure on a live source
	Tool                   // materializer non-zero exit or timeout
	Storage                // persistent store transaction failure
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Upstream:
		return "upstream"
	case Tool:
		return "tool"
	case Storage:
		return "storage"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err (or anything it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// HTTPStatus maps an error to the status code contract of the API. Conflict
// deliberately maps to 403 to match the executor-facing endpoints.
func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case Validation, Upstream:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusForbidden
	case Tool:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

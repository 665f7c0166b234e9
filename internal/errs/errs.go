// Package errs holds the error taxonomy shared by the agent invoker, the HTTP
// API and the command line.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind int

// Error kinds. The zero value is Unclassified so that plain errors wrapped
// with a reason are still treated as server faults.
const (
	Unclassified Kind = iota
	InvalidModel
	ModelDecommissioned
	ModelAPIError
	NoResponseGenerated
)

var kindNames = map[Kind]string{
	Unclassified:        "unclassified",
	InvalidModel:        "invalid_model",
	ModelDecommissioned: "model_decommissioned",
	ModelAPIError:       "model_api_error",
	NoResponseGenerated: "no_response_generated",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// statusByKind is the response class for every kind.
var statusByKind = map[Kind]int{
	InvalidModel:        http.StatusBadRequest,
	ModelDecommissioned: http.StatusBadRequest,
	ModelAPIError:       http.StatusBadRequest,
	NoResponseGenerated: http.StatusBadRequest,
	Unclassified:        http.StatusInternalServerError,
}

// HTTPStatus returns the status code a kind is surfaced with.
func HTTPStatus(k Kind) int {
	if code, ok := statusByKind[k]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// UserErrorf is a user-facing error.
// This helper exists mostly to avoid linters complaining about errors starting
// with a capitalized letter.
func UserErrorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Error wraps an underlying error with a user-facing reason.
//
// Reason is meant to be short and actionable; Err may contain technical details.
// When Err is nil, Error() falls back to Reason.
type Error struct {
	Kind   Kind
	Err    error
	Reason string
}

// New creates an Error of the given kind with no underlying cause.
func New(kind Kind, reason string) Error {
	return Error{Kind: kind, Reason: reason}
}

// Wrap creates an Error with the given underlying error and user-facing reason.
func Wrap(err error, reason string) Error {
	return Error{Err: err, Reason: reason}
}

// Wrapf creates an Error of the given kind with a formatted reason.
func Wrapf(kind Kind, err error, format string, a ...any) Error {
	return Error{Kind: kind, Err: err, Reason: fmt.Sprintf(format, a...)}
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e Error) Unwrap() error {
	return e.Err
}

// ReasonText returns the user-facing reason for the error.
func (e Error) ReasonText() string {
	if e.Reason == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

// ClientFault reports whether the error is caused by the caller's input or a
// condition the caller can act on.
func (e Error) ClientFault() bool {
	return HTTPStatus(e.Kind) < http.StatusInternalServerError
}

// KindOf returns the kind of the first Error in err's chain, or Unclassified.
func KindOf(err error) Kind {
	var e Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unclassified
}

// Chain renders err and every error it wraps, one per line, outermost first.
func Chain(err error) []string {
	var lines []string
	for err != nil {
		lines = append(lines, fmt.Sprintf("%T: %s", err, err.Error()))
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				lines = append(lines, Chain(inner)...)
			}
			return lines
		default:
			err = errors.Unwrap(err)
		}
	}
	return lines
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so the HTTP boundary can pick a status code.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindAuth       Kind = "auth"
	KindConfig     Kind = "config"
	KindUpstream   Kind = "upstream"
	KindInternal   Kind = "internal"
)

// Error is the typed error returned by the auth and relay services.
// Status and Detail are only populated for upstream failures and carry
// the webhook's HTTP status and raw response text.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports missing or malformed input.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Conflict reports a uniqueness violation.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Auth reports bad credentials or a bad token.
func Auth(msg string, err error) *Error {
	return &Error{Kind: KindAuth, Message: msg, Err: err}
}

// Config reports that the caller has no webhook configured.
func Config(msg string) *Error {
	return &Error{Kind: KindConfig, Message: msg}
}

// Upstream reports a webhook that was unreachable, timed out or answered
// with a non-success status. status is 0 when no response was received.
func Upstream(msg string, status int, detail string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Status: status, Detail: detail, Err: err}
}

// Internal wraps an unclassified failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to its default response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindConfig:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

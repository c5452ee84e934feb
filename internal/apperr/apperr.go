// Package apperr defines the error kinds that cross component boundaries.
// Every kind is a sentinel usable with errors.Is; *Error adds the failing
// operation, a caller-safe message and the cause.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration means required settings or credentials are missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrRetrievalDegraded means a knowledge domain could not be indexed or
	// loaded; grammar answers continue without supporting context.
	ErrRetrievalDegraded = errors.New("retrieval degraded")

	// ErrInvalidRequest means the request is missing a required field.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound means the requested lesson does not exist.
	ErrNotFound = errors.New("not found")

	// ErrServiceUnavailable means the pipeline or a responder is not ready.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrUpstreamFailure means the language model call failed or timed out.
	ErrUpstreamFailure = errors.New("upstream failure")
)

// Error carries a kind together with where and why it happened.
type Error struct {
	Kind    error  // one of the sentinels above
	Op      string // e.g. "dispatch.Handle"
	Message string // safe to show to the learner
	Err     error  // underlying cause (optional)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the cause when present, else the kind.
func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches the kind as well as anything in the cause chain.
func (e *Error) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// New builds an *Error without a cause.
func New(kind error, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an *Error around err.
func Wrap(kind error, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Message returns the caller-safe message of err. Errors without one get a
// generic text so internal details never reach the client.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps an error onto the status code the server responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstreamFailure) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

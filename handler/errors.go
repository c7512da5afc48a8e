package handler

import (
	"errors"
	"net/http"
)

var (
	// ErrNilResponse indicates a handler returned nil instead of a Response
	ErrNilResponse = errors.New("handler returned nil response")
)

// HTTPError is an error rendered to the client as {error, code, details}.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e HTTPError) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + ": " + e.Details
	}
	return e.Code + ": " + e.Message
}

// NewHTTPError creates an error with the given status, machine-readable code
// and human message.
func NewHTTPError(status int, code, message string) HTTPError {
	return HTTPError{Status: status, Code: code, Message: message}
}

// WithDetails returns a copy of e carrying details.
func (e HTTPError) WithDetails(details string) HTTPError {
	e.Details = details
	return e
}

var (
	ErrBadRequest      = NewHTTPError(http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
	ErrUnauthorized    = NewHTTPError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
	ErrNotFound        = NewHTTPError(http.StatusNotFound, "NOT_FOUND", "Not found")
	ErrTooManyRequests = NewHTTPError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
	ErrInternalError   = NewHTTPError(http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred processing your request")
)

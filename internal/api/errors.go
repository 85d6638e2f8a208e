// Package api provides the request dispatcher for the Drive-PI backend:
// one entry point that turns (method, route, body, token) into a decoded
// result or a classified *Error.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusTransport is the pseudo status code reported when the server could
// not be reached at all.
const StatusTransport = -1

// Messages used when the server gives us nothing better.
const (
	MessageTransport    = "Failed to connect"
	MessageInvalidJSON  = "Invalid JSON response"
	MessageUnknownError = "Unknown error"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, api.ErrUnauthorized) to check.
var (
	ErrTransport    = errors.New("api: failed to connect")
	ErrDecode       = errors.New("api: invalid JSON response")
	ErrBadRequest   = errors.New("api: bad request")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrConflict     = errors.New("api: conflict")
	ErrServer       = errors.New("api: server error")
)

// Error is the structured [status, message] failure returned by the
// dispatcher. Status is StatusTransport when the request never got a
// response.
type Error struct {
	Status    int
	Message   string
	RequestID string
	Err       error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.Status == StatusTransport {
		return fmt.Sprintf("api: %s", e.Message)
	}

	if e.RequestID != "" {
		return fmt.Sprintf("api: HTTP %d (request-id: %s): %s", e.Status, e.RequestID, e.Message)
	}

	return fmt.Sprintf("api: HTTP %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf returns the status code carried by err, or 0 if err is not an
// *Error.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}

	return 0
}

// MessageOf returns the server-facing message carried by err. Errors that
// did not come from the dispatcher fall back to their Error() text.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	return err.Error()
}

// classifyStatus maps a non-2xx HTTP status code to a sentinel error.
// Codes without a dedicated sentinel map to ErrServer.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrServer
	}
}

// Package apierr defines the closed set of error kinds shared by the
// broker and runner HTTP/WebSocket surfaces, and their wire representation.
package apierr

import "net/http"

// Kind is one of the error kinds enumerated by the system design. It is
// never a transport status code directly — callers map it to one.
type Kind string

const (
	InvalidPayload      Kind = "INVALID_PAYLOAD"
	InvalidID           Kind = "INVALID_ID"
	Unauthorized        Kind = "UNAUTHORIZED"
	NotFound            Kind = "NOT_FOUND"
	Conflict            Kind = "CONFLICT"
	RateLimited         Kind = "RATE_LIMITED"
	PathEscape          Kind = "PATH_ESCAPE"
	UpstreamFailed      Kind = "UPSTREAM_FAILED"
	ContainerFailed     Kind = "CONTAINER_FAILED"
	UnsupportedLanguage Kind = "UNSUPPORTED_LANGUAGE"
	Internal            Kind = "INTERNAL_ERROR"
	BadRequest          Kind = "BAD_REQUEST"
	MethodNotAllowed    Kind = "METHOD_NOT_ALLOWED"
)

// Error is the canonical error value returned by broker/runner handlers.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// New constructs an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// HTTPStatus maps a Kind to the HTTP status code callers should send.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidPayload, PathEscape, BadRequest:
		return http.StatusBadRequest
	case InvalidID:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case UpstreamFailed:
		return http.StatusBadGateway
	case ContainerFailed:
		return http.StatusInternalServerError
	case UnsupportedLanguage:
		return http.StatusBadRequest
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// AsError unwraps err into an *Error, falling back to a generic internal
// error so callers always have a Kind to report.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return &Error{Kind: Internal, Message: err.Error()}
}

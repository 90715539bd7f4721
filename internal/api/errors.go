package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Category groups backend failures by what the caller can do about them.
type Category int

const (
	CategoryNone Category = iota
	CategoryNetwork
	CategoryValidation
	CategoryNotFound
	CategoryServer
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryValidation:
		return "validation"
	case CategoryNotFound:
		return "not_found"
	case CategoryServer:
		return "server"
	default:
		return "none"
	}
}

// NetworkError means the request never produced an HTTP response: transport
// failure, timeout or a cancelled context.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a 4xx rejection of the request itself.
type ValidationError struct {
	Op      string
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: invalid request: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: rejected with %d: %s", e.Op, e.Status, e.Message)
}

type NotFoundError struct {
	Op      string
	Code    string
	Status  int
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: note %q not found (%d)", e.Op, e.Code, e.Status)
}

// ServerError covers 5xx responses and successful responses whose body could
// not be understood.
type ServerError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: server %d: %s: %v", e.Op, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: server %d: %s", e.Op, e.Status, e.Message)
}

func (e *ServerError) Unwrap() error { return e.Err }

// Classify maps an HTTP status to a category. 404 and 410 both mean the note
// is gone; every other 4xx is a validation failure.
func Classify(status int) Category {
	switch {
	case status >= 200 && status < 400:
		return CategoryNone
	case status == http.StatusNotFound || status == http.StatusGone:
		return CategoryNotFound
	case status >= 400 && status < 500:
		return CategoryValidation
	default:
		return CategoryServer
	}
}

func statusError(op, code string, status int, message string) error {
	switch Classify(status) {
	case CategoryNotFound:
		return &NotFoundError{Op: op, Code: code, Status: status, Message: message}
	case CategoryValidation:
		return &ValidationError{Op: op, Status: status, Message: message}
	default:
		return &ServerError{Op: op, Status: status, Message: message}
	}
}

// CategoryOf reports the category of any error returned by the client.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}
	var (
		netErr      *NetworkError
		validErr    *ValidationError
		notFoundErr *NotFoundError
		serverErr   *ServerError
	)
	switch {
	case errors.As(err, &notFoundErr):
		return CategoryNotFound
	case errors.As(err, &validErr):
		return CategoryValidation
	case errors.As(err, &serverErr):
		return CategoryServer
	case errors.As(err, &netErr),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	}
	return CategoryServer
}

func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// UserMessage turns a client error into text suitable for a toast.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var validErr *ValidationError
	switch CategoryOf(err) {
	case CategoryNotFound:
		return "Note not found or has expired."
	case CategoryValidation:
		if errors.As(err, &validErr) && validErr.Message != "" {
			return validErr.Message
		}
		return "The note was rejected. Check the content and try again."
	case CategoryNetwork:
		return "Could not reach the note service. Check your connection and try again."
	default:
		return "The note service is having trouble. Please try again."
	}
}

package api

import (
	"errors"
	"fmt"
	"net/http"

	applog "ledgerdash/internal/log"
)

// Kind classifies a failed backend call.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindAuth
	KindParse
)

var (
	ErrNetwork = errors.New("network error")
	ErrAuth    = errors.New("authentication error")
	ErrParse   = errors.New("parse error")
)

// Error is returned by every backend call. errors.Is matches both the kind
// sentinel and the underlying cause.
type Error struct {
	Kind       Kind
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.sentinel().Error()
	if e.Endpoint != "" {
		msg += " on " + e.Endpoint
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindAuth:
		return ErrAuth
	case KindParse:
		return ErrParse
	default:
		return ErrNetwork
	}
}

func networkError(endpoint string, status int, err error) *Error {
	return &Error{Kind: KindNetwork, Endpoint: endpoint, StatusCode: status, Err: err}
}

func authError(endpoint string, status int, err error) *Error {
	return &Error{Kind: KindAuth, Endpoint: endpoint, StatusCode: status, Err: err}
}

func parseError(endpoint string, err error) *Error {
	return &Error{Kind: KindParse, Endpoint: endpoint, Err: err}
}

// UserMessage converts a load failure into the inline message shown in place
// of the table. It never returns an empty string for a non-nil error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return "Something went wrong while loading the data."
	}
	switch apiErr.Kind {
	case KindAuth:
		return "Your session is missing or has expired. Sign in again to load this data."
	case KindParse:
		return "The server sent data in an unexpected format."
	}
	switch {
	case apiErr.StatusCode >= 500:
		return fmt.Sprintf("The server failed to respond (%d %s). Try again.", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
	case apiErr.StatusCode == http.StatusNotFound:
		return "The requested data could not be found."
	case apiErr.StatusCode != 0:
		return fmt.Sprintf("The request was rejected (%d %s).", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
	default:
		return "Could not reach the server. Check your connection and try again."
	}
}

// ErrorType maps an error to the structured logging category.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return applog.ErrorTypeAuth
	case errors.Is(err, ErrParse):
		return applog.ErrorTypeParse
	case errors.Is(err, ErrNetwork):
		return applog.ErrorTypeNetwork
	default:
		return applog.ErrorTypeInternal
	}
}

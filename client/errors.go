package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is matched by a *StatusError carrying HTTP 401.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError describes a request the backend did not accept.
// Err holds the reason a 401 could not be recovered from, when there is one.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

func newStatusError(req *http.Request, statusCode int, body []byte) *StatusError {
	return &StatusError{
		Method:     req.Method,
		URL:        req.URL.Redacted(),
		StatusCode: statusCode,
		Message:    messageFromBody(body),
	}
}

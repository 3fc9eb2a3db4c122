package diskapi

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
)

// Sentinel errors matched by APIError through errors.Is
var (
	// ErrBadRequest is matched by 4xx responses other than 401, 403 and 429
	ErrBadRequest      = errors.New("disk api: bad request")
	ErrNotFound        = errors.New("disk api: resource not found")
	ErrUnauthorized    = errors.New("disk api: unauthorized")
	ErrConflict        = errors.New("disk api: resource conflict")
	ErrTooManyRequests = errors.New("disk api: too many requests")
	ErrServer          = errors.New("disk api: server error")

	ErrOperationFailed = errors.New("disk api: asynchronous operation failed")
)

// APIError is a non-success response from the drive API
type APIError struct {
	StatusCode  int
	Code        string // e.g. "DiskNotFoundError"
	Message     string
	Description string
}

// errorBody is the JSON error document returned by the API
type errorBody struct {
	Message     string `json:"message"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Description
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("disk api error %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("disk api error %d: %s", e.StatusCode, msg)
}

// Unwrap exposes the sentinels matching the status code. 404 and 409 also
// match fs.ErrNotExist and fs.ErrExist. Throttling and credential failures
// are not in the ErrBadRequest family.
func (e *APIError) Unwrap() []error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return []error{ErrUnauthorized}
	case e.StatusCode == http.StatusTooManyRequests:
		return []error{ErrTooManyRequests}
	case e.StatusCode == http.StatusNotFound:
		return []error{ErrNotFound, fs.ErrNotExist, ErrBadRequest}
	case e.StatusCode == http.StatusConflict:
		return []error{ErrConflict, fs.ErrExist, ErrBadRequest}
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return []error{ErrBadRequest}
	case e.StatusCode >= 500:
		return []error{ErrServer}
	}
	return nil
}

// IsNotFound reports whether err is a not-found response
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBadRequest reports whether err is a client-side (4xx) failure in the
// bad-request class
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// isRetryable reports whether a failed attempt may be repeated
func isRetryable(err error, idempotent bool) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return idempotent && apiErr.StatusCode >= 500
	}
	var netErr *transportError
	if errors.As(err, &netErr) {
		return idempotent
	}
	return false
}

// transportError marks failures that happened before a response was received
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("disk api request failed: %v", e.err)
}

func (e *transportError) Unwrap() error {
	return e.err
}

package groupme

import (
	"errors"
	"fmt"
)

// Error classes surfaced to callers. Match with errors.Is.
var (
	// ErrAuthentication covers 401/403; never retried.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound covers 404.
	ErrNotFound = errors.New("resource not found")
	// ErrRemoteUnavailable covers 429/5xx/network failures after retries
	// are exhausted.
	ErrRemoteUnavailable = errors.New("remote unavailable")
)

// APIError carries the HTTP detail behind one of the error classes.
type APIError struct {
	StatusCode int
	Detail     string
	kind       error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("groupme api: %s: %s", e.kind, e.Detail)
	}
	return fmt.Sprintf("groupme api: %s (HTTP %d): %s", e.kind, e.StatusCode, e.Detail)
}

func (e *APIError) Unwrap() error { return e.kind }

func apiError(kind error, status int, detail string) *APIError {
	return &APIError{StatusCode: status, Detail: detail, kind: kind}
}

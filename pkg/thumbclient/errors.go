package thumbclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized indicates a rejected credential or an expired signed URL
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the video or thumbnail does not exist
	ErrNotFound = errors.New("not found")

	// ErrTerminallyFailed indicates a key exhausted its retry budget for this session
	ErrTerminallyFailed = errors.New("terminally failed")
)

// NetworkError is a failed HTTP exchange. StatusCode is zero for transport errors.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request %s failed with status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("request %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request may succeed
func (e *NetworkError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// TerminalError is returned for a key that is marked terminally failed. It
// matches ErrTerminallyFailed with errors.Is.
type TerminalError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempts: %v", ErrTerminallyFailed, e.Key, e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

func (e *TerminalError) Is(target error) bool {
	return target == ErrTerminallyFailed
}

// IsRetryable classifies an attempt failure. Auth, not-found and context
// errors are permanent; temporary network errors and unknown errors are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrTerminallyFailed) {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Temporary()
	}
	return true
}

// statusError maps an HTTP status to the error taxonomy
func statusError(url string, status int, body string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", url, ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	return &NetworkError{URL: url, StatusCode: status, Err: errors.New(body)}
}

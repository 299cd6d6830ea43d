package fetch

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrorKind classifies how an upstream call failed.
type ErrorKind string

const (
	// KindPermanent marks failures that will not succeed on retry.
	KindPermanent ErrorKind = "permanent"
	// KindExhausted marks a transient failure that survived every retry attempt.
	KindExhausted ErrorKind = "exhausted"
	// KindTimeout marks a call that exceeded its overall deadline.
	KindTimeout ErrorKind = "timeout"
)

// Error is the failure type surfaced by the Client. It carries the
// classification and the number of attempts that were made.
type Error struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch failed (%s after %d attempt(s)): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPError represents a non-2xx response from an upstream provider.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned %s for %s", e.Status, e.URL)
}

// Transient reports whether err is likely to succeed on retry: network
// timeouts, connection resets/refusals, truncated bodies, and HTTP 429/5xx.
func Transient(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}

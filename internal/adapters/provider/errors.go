package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every upstream failure wraps exactly one of them.
var (
	ErrTransient = errors.New("transient provider error")
	ErrPermanent = errors.New("permanent provider error")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.Status, e.Body)
}

// Unwrap classifies the status: throttling and server errors are transient.
func (e *StatusError) Unwrap() error {
	if Retryable(e.Status) {
		return ErrTransient
	}
	return ErrPermanent
}

// Retryable reports whether a response status is worth retrying.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}

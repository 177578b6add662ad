package embedder

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// StatusError reports a non-2xx response from an embedding backend.
type StatusError struct {
	// Backend is the short backend name ("openai", "ollama").
	Backend string
	// Code is the HTTP status code.
	Code int
	// Message is the backend's error message, or "HTTP <code>".
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s embedder: %s (status %d)", e.Backend, e.Message, e.Code)
}

// Retryable reports whether the status is a rate limit or a server-side fault.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// IsRetryable reports whether err is worth retrying: a retryable StatusError
// or a network-level timeout.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

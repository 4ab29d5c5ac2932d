package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a classified provider failure. Transient errors are eligible
// for retry with backoff; permanent errors fail the operation and skip
// its dependents.
type Error struct {
	Transient bool
	Operation string // "create", "read", "update", "delete"
	Kind      string
	Err       error
}

func (e *Error) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("%s provider error: %s %s: %v", class, e.Operation, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable provider failure.
func NewTransient(operation, kind string, err error) *Error {
	return &Error{Transient: true, Operation: operation, Kind: kind, Err: err}
}

// NewPermanent wraps err as a non-retryable provider failure.
func NewPermanent(operation, kind string, err error) *Error {
	return &Error{Transient: false, Operation: operation, Kind: kind, Err: err}
}

// IsTransient reports whether an error should be retried. Classified errors
// carry the answer; anything else falls back to matching common throttling
// and network failure messages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Transient
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"throttl",
		"rate exceed",
		"too many requests",
		"request limit",
		"service unavailable",
		"internal server error",
		"connection reset",
		"connection refused",
		"timeout",
		"tls handshake",
		"i/o timeout",
		"temporary failure",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

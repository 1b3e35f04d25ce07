package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// TransientError marks an error the caller may retry.
type TransientError struct {
	Err     error
	Message string // operator-friendly message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error, message string) error {
	return &TransientError{Err: err, Message: message}
}

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err     error
	Message string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as non-retryable.
func NewPermanentError(err error, message string) error {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient reports whether an error should be retried. Errors not
// explicitly classified fall back to network-shaped heuristics.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused", "connection reset", "broken pipe",
		"timeout", "deadline exceeded", "temporarily unavailable",
		"429", "rate limit", "502", "503", "504",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// IsPermanent reports whether an error is known not to be retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return true
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return false
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"unauthorized", "forbidden", "not found", "bad request", "invalid",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

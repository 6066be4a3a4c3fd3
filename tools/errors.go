package tools

import (
	"context"
	"errors"
	"net"
)

// Error types for classifying tool failures.

// TransientError represents a temporary failure that may succeed on retry:
// timeouts, network failures, upstream rate-limit rejections.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// PermanentError represents a contract or validation violation that will not
// succeed on retry.
type PermanentError struct {
	err error
}

func (e *PermanentError) Error() string {
	return e.err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.err
}

// NewPermanentError wraps an error as permanent (non-retryable).
func NewPermanentError(err error) error {
	return &PermanentError{err: err}
}

// IsTransient returns true if the error should be retried. Unclassified
// timeouts and network errors count as transient; a per-call deadline
// expiring is a timeout, not a distinct terminal state.
func IsTransient(err error) bool {
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsPermanent returns true if the error must not be retried.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

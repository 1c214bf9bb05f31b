package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Store errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Queue errors
	ErrLeaseLost = errors.New("job lease lost to another worker")
	ErrVoided    = errors.New("job voided")
	ErrLocked    = errors.New("job locked by another worker")

	ErrAttemptsExhausted = errors.New("attempts exhausted")

	// Terminal pipeline outcomes
	ErrPolicyViolation = errors.New("suggestion blocked by guardrail policy")
	ErrQuotaExceeded   = errors.New("usage quota exceeded")

	ErrEmptyCompletion = errors.New("completion returned no text")
)

// ValidationError marks a job or event that can never succeed. Not retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError wraps a collaborator failure (timeout, rate limit, 5xx) that
// is worth retrying. RetryAfter is a hint from the collaborator, zero if none.
type TransientError struct {
	Op         string
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// DeliveryFailure is returned by the delivery router when no channel accepted
// the suggestion. Permanent failures (unknown channel, user left) are not retried.
type DeliveryFailure struct {
	Channel   string
	Reason    string
	Permanent bool
	Err       error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("delivery via %s failed: %s", e.Channel, e.Reason)
}
func (e *DeliveryFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var df *DeliveryFailure
	if errors.As(err, &df) {
		return !df.Permanent
	}
	return errors.Is(err, ErrEmptyCompletion)
}

// RetryAfterHint extracts the collaborator's retry hint, if any.
func RetryAfterHint(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// IsRetryable reports whether another attempt could succeed. Unclassified
// errors are retried; validation, policy, quota and permanent delivery
// failures are not.
func IsRetryable(err error) bool {
	if err == nil || IsValidation(err) {
		return false
	}
	if errors.Is(err, ErrPolicyViolation) || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrVoided) {
		return false
	}
	var df *DeliveryFailure
	if errors.As(err, &df) {
		return !df.Permanent
	}
	return true
}

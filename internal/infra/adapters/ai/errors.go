package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ai-reply-assistant/internal/domain"
)

// classify maps a provider failure onto the domain error taxonomy:
// timeouts, throttling and server errors are transient, the rest are not.
func classify(op string, status int, retryAfter string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientError{Op: op, Err: err}
	}
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return &domain.TransientError{Op: op, Err: err, RetryAfter: parseRetryAfter(retryAfter)}
	case status == 0:
		// transport failure, no response
		return &domain.TransientError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: http %d: %w", op, status, err)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"
)

const (
	maxAttempts  = 3
	initialDelay = 100 * time.Millisecond
)

// httpStatusError is a non-2xx response. It is never retried; the server
// answered, it just said no.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// isTransient reports whether the fault is worth a retry: timeouts and
// connection-level failures qualify, anything the server actually answered
// does not.
func isTransient(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}

// withRetry runs f up to maxAttempts times with exponential backoff,
// retrying transient faults only. Context cancellation aborts the wait.
func withRetry[T any](ctx context.Context, logger *slog.Logger, op string, f func() (T, error)) (T, error) {
	var zero T
	delay := initialDelay
	for attempt := 1; ; attempt++ {
		v, err := f()
		if err == nil {
			return v, nil
		}
		if !isTransient(err) || attempt == maxAttempts {
			return zero, err
		}
		logger.Warn("transient fault, retrying",
			"operation", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

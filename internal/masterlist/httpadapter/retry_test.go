package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"broken pipe", syscall.EPIPE, true},
		{"wrapped reset", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"net timeout", timeoutError{}, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"http rejection", &httpStatusError{status: 401}, false},
		{"wrapped http rejection", fmt.Errorf("call: %w", &httpStatusError{status: 503}), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTransient(tc.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("transient faults are retried until success", func(t *testing.T) {
		calls := 0
		v, err := withRetry(context.Background(), logger, "op", func() (string, error) {
			calls++
			if calls < 3 {
				return "", syscall.ECONNRESET
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 3, calls)
	})

	t.Run("attempts are capped", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), logger, "op", func() (int, error) {
			calls++
			return 0, syscall.ECONNREFUSED
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, syscall.ECONNREFUSED)
		assert.Equal(t, maxAttempts, calls)
	})

	t.Run("non-transient faults fail immediately", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), logger, "op", func() (int, error) {
			calls++
			return 0, &httpStatusError{status: 401, body: "denied"}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls, "an answered request must not be replayed")
	})

	t.Run("cancelled context aborts the backoff wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := withRetry(ctx, logger, "op", func() (int, error) {
			calls++
			return 0, syscall.ECONNRESET
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("first success returns without waiting", func(t *testing.T) {
		start := time.Now()
		v, err := withRetry(context.Background(), logger, "op", func() (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Less(t, time.Since(start), initialDelay)
	})
}

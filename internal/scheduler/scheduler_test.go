package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsync/pkg/result"
)

type countingSyncer struct {
	calls atomic.Int32
}

func (s *countingSyncer) Sync(context.Context) result.Result[int] {
	s.calls.Add(1)
	return result.Ok(1)
}

var discardLogger = slog.New(slog.DiscardHandler)

func TestNew(t *testing.T) {
	t.Run("valid cron expression", func(t *testing.T) {
		s, err := New(&countingSyncer{}, "0 3 * * *", WithLogger(discardLogger))
		require.NoError(t, err)
		s.Stop()
	})

	t.Run("invalid cron expression fails construction", func(t *testing.T) {
		_, err := New(&countingSyncer{}, "not a cron", WithLogger(discardLogger))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid cron expression")
	})

	t.Run("nil syncer fails construction", func(t *testing.T) {
		_, err := New(nil, "0 3 * * *")
		assert.Error(t, err)
	})
}

func TestRunOnStartup(t *testing.T) {
	t.Run("enabled fires one run before the schedule", func(t *testing.T) {
		syncer := &countingSyncer{}
		s, err := New(syncer, "0 3 * * *", WithLogger(discardLogger), WithRunOnStartup(true))
		require.NoError(t, err)
		defer s.Stop()

		s.Start(context.Background())
		assert.EqualValues(t, 1, syncer.calls.Load())
	})

	t.Run("disabled waits for the first tick", func(t *testing.T) {
		syncer := &countingSyncer{}
		s, err := New(syncer, "0 3 * * *", WithLogger(discardLogger))
		require.NoError(t, err)
		defer s.Stop()

		s.Start(context.Background())
		assert.Zero(t, syncer.calls.Load())
	})
}

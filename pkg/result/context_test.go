package result

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingContext appends its name on entry and exit so nesting order can
// be asserted.
type recordingContext[T any] struct {
	name  string
	trace *[]string
}

func (c recordingContext[T]) Execute(ctx context.Context, comp Computation[T]) Result[T] {
	*c.trace = append(*c.trace, c.name+":enter")
	res := comp(ctx)
	*c.trace = append(*c.trace, c.name+":exit")
	return res
}

func TestNoOpContext(t *testing.T) {
	res := NoOpContext[int]{}.Execute(context.Background(), func(context.Context) Result[int] {
		return Ok(5)
	})
	assert.Equal(t, 5, res.MustValue())
}

func TestLoggingContext(t *testing.T) {
	newLogger := func() (*slog.Logger, *bytes.Buffer) {
		var buf bytes.Buffer
		return slog.New(slog.NewTextHandler(&buf, nil)), &buf
	}

	t.Run("logs start and completion on success", func(t *testing.T) {
		logger, buf := newLogger()
		ctx := NewLogging[int](logger, "MasterListSync")

		res := ctx.Execute(context.Background(), func(context.Context) Result[int] { return Ok(11) })

		assert.Equal(t, 11, res.MustValue())
		out := buf.String()
		assert.Contains(t, out, "execution started")
		assert.Contains(t, out, "execution completed")
		assert.Contains(t, out, "MasterListSync")
		assert.Contains(t, out, "duration_ms")
	})

	t.Run("logs failure outcome without altering it", func(t *testing.T) {
		logger, buf := newLogger()
		ctx := NewLogging[int](logger, "MasterListSync")

		res := ctx.Execute(context.Background(), func(context.Context) Result[int] {
			return Fail[int](CodeExternalService, "download failed")
		})

		assert.Equal(t, CodeExternalService, res.MustFailure().Code)
		assert.Contains(t, buf.String(), "execution failed")
		assert.Contains(t, buf.String(), "download failed")
	})

	t.Run("panic becomes technical failure", func(t *testing.T) {
		logger, _ := newLogger()
		ctx := NewLogging[int](logger, "MasterListSync")

		res := ctx.Execute(context.Background(), func(context.Context) Result[int] {
			panic("stage blew up")
		})

		desc := res.MustFailure()
		assert.Equal(t, CodeTechnical, desc.Code)
		assert.Contains(t, desc.Cause.Error(), "stage blew up")
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		ctx := NewLogging[int](nil, "op")
		res := ctx.Execute(context.Background(), func(context.Context) Result[int] { return Ok(1) })
		assert.True(t, res.IsSuccess())
	})
}

func TestCompose(t *testing.T) {
	t.Run("empty list is a construction error", func(t *testing.T) {
		_, err := Compose[int]()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one")
	})

	t.Run("first listed is outermost", func(t *testing.T) {
		var trace []string
		outer := recordingContext[int]{name: "outer", trace: &trace}
		inner := recordingContext[int]{name: "inner", trace: &trace}

		composed, err := Compose[int](outer, inner)
		require.NoError(t, err)

		res := composed.Execute(context.Background(), func(context.Context) Result[int] {
			trace = append(trace, "computation")
			return Ok(1)
		})

		assert.True(t, res.IsSuccess())
		assert.Equal(t, []string{
			"outer:enter", "inner:enter", "computation", "inner:exit", "outer:exit",
		}, trace)
	})

	t.Run("single context composes", func(t *testing.T) {
		var trace []string
		only := recordingContext[int]{name: "only", trace: &trace}

		composed, err := Compose[int](only)
		require.NoError(t, err)

		res := composed.Execute(context.Background(), func(context.Context) Result[int] { return Ok(2) })
		assert.Equal(t, 2, res.MustValue())
		assert.Equal(t, []string{"only:enter", "only:exit"}, trace)
	})

	t.Run("failure propagates through all layers", func(t *testing.T) {
		var trace []string
		composed, err := Compose[int](
			recordingContext[int]{name: "a", trace: &trace},
			recordingContext[int]{name: "b", trace: &trace},
		)
		require.NoError(t, err)

		res := composed.Execute(context.Background(), func(context.Context) Result[int] {
			return Fail[int](CodeBusinessRule, "rejected")
		})
		assert.Equal(t, CodeBusinessRule, res.MustFailure().Code)
	})
}

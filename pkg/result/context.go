package result

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	txcontext "certsync/pkg/platform/tx"
)

// Computation is a Result-producing unit of work. The context it receives
// may carry resources injected by the surrounding execution context, such
// as a database transaction.
type Computation[T any] func(ctx context.Context) Result[T]

// ExecutionContext wraps a Computation with side-effecting behavior
// (logging, transaction handling) so pure pipeline code never mixes with
// either.
type ExecutionContext[T any] interface {
	Execute(ctx context.Context, comp Computation[T]) Result[T]
}

// NoOpContext runs the computation without any wrapping. Used for tests and
// pure logic.
type NoOpContext[T any] struct{}

func (NoOpContext[T]) Execute(ctx context.Context, comp Computation[T]) Result[T] {
	return comp(ctx)
}

// LoggingContext records start, duration and outcome around the inner
// computation. A panic inside the computation is converted into a
// technical-classified Failure rather than propagating.
type LoggingContext[T any] struct {
	logger    *slog.Logger
	operation string
}

// NewLogging builds a LoggingContext for the named operation.
func NewLogging[T any](logger *slog.Logger, operation string) LoggingContext[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return LoggingContext[T]{logger: logger, operation: operation}
}

func (c LoggingContext[T]) Execute(ctx context.Context, comp Computation[T]) (res Result[T]) {
	start := time.Now()
	c.logger.InfoContext(ctx, "execution started", "operation", c.operation)

	defer func() {
		if rec := recover(); rec != nil {
			res = FailCause[T](CodeTechnical,
				fmt.Sprintf("%s: execution panicked", c.operation),
				fmt.Errorf("panic: %v", rec))
		}
		elapsed := time.Since(start)
		if desc, failed := res.Failure(); failed {
			c.logger.ErrorContext(ctx, "execution failed",
				"operation", c.operation,
				"duration_ms", elapsed.Milliseconds(),
				"code", desc.Code,
				"error", desc.Message,
			)
			return
		}
		c.logger.InfoContext(ctx, "execution completed",
			"operation", c.operation,
			"duration_ms", elapsed.Milliseconds(),
		)
	}()

	res = comp(ctx)
	return res
}

// TransactionalContext opens a database transaction around the computation,
// injects it into the context, and commits on Success. A Failure or a panic
// rolls the transaction back; the panic is converted into a
// database-classified Failure.
type TransactionalContext[T any] struct {
	db *sql.DB
}

// NewTransactional builds a TransactionalContext over the given database.
func NewTransactional[T any](db *sql.DB) TransactionalContext[T] {
	return TransactionalContext[T]{db: db}
}

func (c TransactionalContext[T]) Execute(ctx context.Context, comp Computation[T]) (res Result[T]) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return FailCause[T](CodeDatabase, "begin transaction", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			_ = tx.Rollback()
			res = FailCause[T](CodeDatabase, "transaction panicked", fmt.Errorf("panic: %v", rec))
			return
		}
		if res.IsFailure() {
			_ = tx.Rollback()
			return
		}
		if err := tx.Commit(); err != nil {
			res = FailCause[T](CodeDatabase, "commit transaction", err)
		}
	}()

	res = comp(txcontext.With(ctx, tx))
	return res
}

// ComposedContext nests an ordered list of contexts: the first listed is
// outermost, the last listed is innermost, nearest the computation.
type ComposedContext[T any] struct {
	contexts []ExecutionContext[T]
}

// Compose builds a ComposedContext. At least one context is required; an
// empty list is a construction-time error.
func Compose[T any](contexts ...ExecutionContext[T]) (ComposedContext[T], error) {
	if len(contexts) == 0 {
		return ComposedContext[T]{}, errors.New("at least one execution context is required")
	}
	return ComposedContext[T]{contexts: contexts}, nil
}

func (c ComposedContext[T]) Execute(ctx context.Context, comp Computation[T]) Result[T] {
	wrapped := comp
	for i := len(c.contexts) - 1; i >= 0; i-- {
		ec, inner := c.contexts[i], wrapped
		wrapped = func(ctx context.Context) Result[T] {
			return ec.Execute(ctx, inner)
		}
	}
	return wrapped(ctx)
}

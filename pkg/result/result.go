// Package result implements a two-track computation type: every fallible
// step yields either Success(value) or Failure(description), and pipelines
// are built by chaining Result-returning functions. A Failure short-circuits
// everything downstream, so stage code only ever writes the success path.
//
// Transformations that change the value type are package functions
// (Map, FlatMap, Combine, AllOf) because Go methods cannot introduce type
// parameters; same-type operations (Ensure, Recover, Peek, ...) live on the
// method set.
package result

import (
	"context"
	"fmt"
	"reflect"
)

// Result is either a Success carrying a value of type T or a Failure
// carrying a *FailureDescription. The zero value is not meaningful; use Ok,
// Fail, FailCause or FailFrom.
type Result[T any] struct {
	value T
	fail  *FailureDescription
}

// Ok wraps a value in a Success. A Success never holds an absent value:
// passing a nil pointer, slice, map, interface, channel or function is a
// programmer error and panics.
func Ok[T any](value T) Result[T] {
	if isAbsent(value) {
		panic("result: Ok called with nil value")
	}
	return Result[T]{value: value}
}

// Fail creates a Failure from a code and message.
func Fail[T any](code ErrorCode, message string) Result[T] {
	return Result[T]{fail: NewFailure(code, message)}
}

// FailCause creates a Failure that wraps the causing error.
func FailCause[T any](code ErrorCode, message string, cause error) Result[T] {
	return Result[T]{fail: NewFailureCause(code, message, cause)}
}

// FailFrom creates a Failure from an existing description. A nil
// description is a programmer error and panics.
func FailFrom[T any](desc *FailureDescription) Result[T] {
	if desc == nil {
		panic("result: FailFrom called with nil description")
	}
	return Result[T]{fail: desc}
}

// IsSuccess reports whether the Result is on the success track.
func (r Result[T]) IsSuccess() bool { return r.fail == nil }

// IsFailure reports whether the Result is on the failure track.
func (r Result[T]) IsFailure() bool { return r.fail != nil }

// Value returns the success value and whether it is present.
func (r Result[T]) Value() (T, bool) { return r.value, r.fail == nil }

// Failure returns the failure description and whether it is present.
func (r Result[T]) Failure() (*FailureDescription, bool) { return r.fail, r.fail != nil }

// MustValue extracts the success value. Calling it on a Failure is a
// programmer error, distinct from a business failure, and panics.
func (r Result[T]) MustValue() T {
	if r.fail != nil {
		panic(fmt.Sprintf("result: MustValue on failure: %v", r.fail))
	}
	return r.value
}

// MustFailure extracts the failure description. Calling it on a Success is
// a programmer error and panics.
func (r Result[T]) MustFailure() *FailureDescription {
	if r.fail == nil {
		panic(fmt.Sprintf("result: MustFailure on success: %v", r.value))
	}
	return r.fail
}

// Ensure turns a Success into a Failure when the predicate rejects the
// value. A Failure passes through untouched.
func (r Result[T]) Ensure(pred func(T) bool, code ErrorCode, message string) Result[T] {
	if r.fail != nil {
		return r
	}
	if !pred(r.value) {
		return Fail[T](code, message)
	}
	return r
}

// MapFailure transforms the failure description, leaving a Success
// untouched.
func (r Result[T]) MapFailure(f func(*FailureDescription) *FailureDescription) Result[T] {
	if r.fail == nil {
		return r
	}
	return FailFrom[T](f(r.fail))
}

// Recover eliminates the failure track by computing a replacement value.
// The outcome is always a Success.
func (r Result[T]) Recover(f func(*FailureDescription) T) Result[T] {
	if r.fail == nil {
		return r
	}
	return Ok(f(r.fail))
}

// Peek runs a side effect on the success value without altering the Result.
// Intended for logging taps only.
func (r Result[T]) Peek(f func(T)) Result[T] {
	if r.fail == nil {
		f(r.value)
	}
	return r
}

// PeekFailure runs a side effect on the failure without altering the Result.
func (r Result[T]) PeekFailure(f func(*FailureDescription)) Result[T] {
	if r.fail != nil {
		f(r.fail)
	}
	return r
}

// GetOrElse extracts the value, falling back to a default on failure.
func (r Result[T]) GetOrElse(fallback T) T {
	if r.fail != nil {
		return fallback
	}
	return r.value
}

// GetOrElseGet extracts the value, computing the fallback from the failure.
func (r Result[T]) GetOrElseGet(f func(*FailureDescription) T) T {
	if r.fail != nil {
		return f(r.fail)
	}
	return r.value
}

// String renders the Result for logs and test output.
func (r Result[T]) String() string {
	if r.fail != nil {
		return fmt.Sprintf("Failure(%s: %s)", r.fail.Code, r.fail.Message)
	}
	return fmt.Sprintf("Success(%v)", r.value)
}

// Map transforms a success value; a Failure passes through unchanged.
func Map[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.fail != nil {
		return Result[U]{fail: r.fail}
	}
	return Ok(f(r.value))
}

// FlatMap chains a Result-returning function. An existing Failure
// short-circuits without invoking f. This is the sole connective used to
// build pipelines.
func FlatMap[T, U any](r Result[T], f func(T) Result[U]) Result[U] {
	if r.fail != nil {
		return Result[U]{fail: r.fail}
	}
	return f(r.value)
}

// Match destructures the Result into a single value of type R.
func Match[T, R any](r Result[T], onSuccess func(T) R, onFailure func(*FailureDescription) R) R {
	if r.fail != nil {
		return onFailure(r.fail)
	}
	return onSuccess(r.value)
}

// Combine succeeds only when both inputs succeed; the first Failure wins.
func Combine[A, B, R any](ra Result[A], rb Result[B], f func(A, B) R) Result[R] {
	return FlatMap(ra, func(a A) Result[R] {
		return Map(rb, func(b B) R { return f(a, b) })
	})
}

// Combine3 succeeds only when all three inputs succeed; the first Failure
// encountered wins.
func Combine3[A, B, C, R any](ra Result[A], rb Result[B], rc Result[C], f func(A, B, C) R) Result[R] {
	return FlatMap(ra, func(a A) Result[R] {
		return FlatMap(rb, func(b B) Result[R] {
			return Map(rc, func(c C) R { return f(a, b, c) })
		})
	})
}

// AllOf reduces a sequence of Results to a Result of a sequence. The first
// Failure in sequence order wins; otherwise all values are returned in
// their original order.
func AllOf[T any](results []Result[T]) Result[[]T] {
	values := make([]T, 0, len(results))
	for _, r := range results {
		if r.fail != nil {
			return Result[[]T]{fail: r.fail}
		}
		values = append(values, r.value)
	}
	return Result[[]T]{value: values}
}

// FromComputation executes a computation that may return an error or panic
// and converts either fault into a Failure with the given classification.
// This is the designated boundary between fault-raising code and the Result
// world.
func FromComputation[T any](f func() (T, error), code ErrorCode, message string) (res Result[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			res = FailCause[T](code, message, fmt.Errorf("panic: %v", rec))
		}
	}()
	v, err := f()
	if err != nil {
		return FailCause[T](code, message, err)
	}
	return Result[T]{value: v}
}

// FromPointer lifts an optional value into the Result world: nil becomes a
// Failure with the given classification.
func FromPointer[T any](p *T, code ErrorCode, message string) Result[T] {
	if p == nil {
		return Fail[T](code, message)
	}
	return Result[T]{value: *p}
}

// MapCtx is the context-aware analogue of Map for steps that cross an I/O
// boundary. Short-circuit semantics are identical; an error or panic raised
// by the step is converted into an external-service Failure.
func MapCtx[T, U any](ctx context.Context, r Result[T], f func(context.Context, T) (U, error)) Result[U] {
	if r.fail != nil {
		return Result[U]{fail: r.fail}
	}
	return FromComputation(func() (U, error) { return f(ctx, r.value) },
		CodeExternalService, "external operation failed")
}

// FlatMapCtx is the context-aware analogue of FlatMap. A panic inside the
// step is converted into an external-service Failure instead of
// propagating.
func FlatMapCtx[T, U any](ctx context.Context, r Result[T], f func(context.Context, T) Result[U]) (res Result[U]) {
	if r.fail != nil {
		return Result[U]{fail: r.fail}
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = FailCause[U](CodeExternalService, "external operation failed", fmt.Errorf("panic: %v", rec))
		}
	}()
	return f(ctx, r.value)
}

// isAbsent reports whether the value is a nil of a nil-able kind.
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

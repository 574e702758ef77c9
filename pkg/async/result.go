// Package async provides Result, a value that becomes available exactly once.
//
// Every file system operation in cachingfs returns a *Result so that cache hits can be
// answered synchronously while misses resolve when the backing store replies.
package async

import (
	"context"
	"fmt"
	"sync"
)

// Result holds the outcome of an operation that may not have completed yet.
// It is resolved at most once; later resolutions are ignored.
type Result[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New returns an unresolved Result and the function that resolves it.
func New[T any]() (*Result[T], func(T, error)) {
	r := &Result[T]{done: make(chan struct{})}
	return r, r.resolve
}

// Resolved returns a Result already holding value.
func Resolved[T any](value T) *Result[T] {
	r, resolve := New[T]()
	resolve(value, nil)
	return r
}

// Failed returns a Result already holding err.
func Failed[T any](err error) *Result[T] {
	r, resolve := New[T]()
	var zero T
	resolve(zero, err)
	return r
}

// Go runs fn in a new goroutine and resolves the Result with its outcome.
// A panic in fn fails the Result instead of crashing the process.
func Go[T any](fn func() (T, error)) *Result[T] {
	r, resolve := New[T]()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero T
				resolve(zero, fmt.Errorf("async: panic: %v", p))
			}
		}()
		resolve(fn())
	}()
	return r
}

func (r *Result[T]) resolve(value T, err error) {
	r.once.Do(func() {
		r.value, r.err = value, err
		close(r.done)
	})
}

// Done returns a channel closed once the Result is resolved.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Ready reports whether the Result is resolved.
func (r *Result[T]) Ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Get blocks until the Result is resolved.
func (r *Result[T]) Get() (T, error) {
	<-r.done
	return r.value, r.err
}

// Wait blocks until the Result is resolved or ctx is done. Abandoning a Result
// does not stop the work producing it.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then chains a continuation onto r. onSuccess receives the value when r succeeds;
// onError, when non-nil, receives the error when r fails, otherwise the error propagates.
// If r is already resolved the continuation runs on the calling goroutine.
func Then[T, U any](r *Result[T], onSuccess func(T) (U, error), onError func(error) (U, error)) *Result[U] {
	apply := func() (U, error) {
		value, err := r.Get()
		if err != nil {
			if onError != nil {
				return onError(err)
			}
			var zero U
			return zero, err
		}
		return onSuccess(value)
	}

	if r.Ready() {
		out, resolve := New[U]()
		resolve(apply())
		return out
	}
	return Go(apply)
}

// Compose chains a continuation that itself returns a Result. When r and the Result
// returned by next are both ready, the returned Result is ready too.
func Compose[T, U any](r *Result[T], next func(T) *Result[U]) *Result[U] {
	if r.Ready() {
		value, err := r.Get()
		if err != nil {
			return Failed[U](err)
		}
		return next(value)
	}
	return Go(func() (U, error) {
		value, err := r.Get()
		if err != nil {
			var zero U
			return zero, err
		}
		return next(value).Get()
	})
}

// All resolves to the values of results in order, or to the first error
// encountered in that order.
func All[T any](results []*Result[T]) *Result[[]T] {
	collect := func() ([]T, error) {
		values := make([]T, len(results))
		for i, r := range results {
			v, err := r.Get()
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}

	for _, r := range results {
		if !r.Ready() {
			return Go(collect)
		}
	}
	out, resolve := New[[]T]()
	resolve(collect())
	return out
}

package workerpool

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// Future is the eventual result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result blocks until the task finished.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// Wait is Result bounded by ctx.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// PanicError carries a panic recovered from a task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Submit schedules fn on the pool. A panic in fn resolves the future with a
// *PanicError; a pool that was shut down resolves it with ErrPoolShutdown.
func Submit[T any](p Pool, fn func(w *Worker) (T, error)) *Future[T] {
	f := newFuture[T]()
	var zero T

	t := task{
		run: func(w *Worker) {
			defer func() {
				if r := recover(); r != nil {
					w.emit(EventTaskPanic)
					f.resolve(zero, &PanicError{Value: r, Stack: stack()})
				}
			}()
			v, err := fn(w)
			f.resolve(v, err)
		},
		cancel: func(err error) { f.resolve(zero, err) },
	}
	if err := p.enqueue(t); err != nil {
		f.resolve(zero, err)
	}
	return f
}

// IterateCompleted yields futures in the order they finish.
func IterateCompleted[T any](futures []*Future[T]) iter.Seq[*Future[T]] {
	return func(yield func(*Future[T]) bool) {
		ready := make(chan *Future[T], len(futures))
		for _, f := range futures {
			go func() {
				<-f.done
				ready <- f
			}()
		}
		for range futures {
			if !yield(<-ready) {
				return
			}
		}
	}
}

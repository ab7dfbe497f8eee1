package bridge

import (
	"context"
	"fmt"
	"sync"
)

// Future is a write-once completion slot.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve records err. Only the first call has any effect.
func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the result. It is nil until Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the result is available or ctx ends. Giving up on the
// wait does not stop the work behind the future.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	default:
	}

	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWaitCancelled, ctx.Err())
	}
}

// Await turns a callback-style execute into a blocking call. If execute
// refuses the work, its error is returned directly.
func Await(ctx context.Context, execute func(onComplete func(error)) error) error {
	f := newFuture()
	if err := execute(f.resolve); err != nil {
		return err
	}
	return f.Wait(ctx)
}

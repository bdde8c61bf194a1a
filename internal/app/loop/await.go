package loop

import (
	"context"

	"github.com/dkeye/VoiceAgent/internal/core"
)

// Await runs work off the loop and posts resume back onto q with its result.
// The gap between the two is a suspension point: resume must re-check any
// state it depends on.
func Await[T any](q core.Queue, work func() (T, error), resume func(T, error)) {
	go func() {
		v, err := work()
		q.Post(func() { resume(v, err) })
	}()
}

// Call runs fn on q and waits for it. It must not be called from the loop.
func Call(ctx context.Context, q core.Queue, fn func()) error {
	done := make(chan struct{})
	q.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

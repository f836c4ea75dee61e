package breaker

import (
	"context"
	"time"
)

// ExecuteWithContext runs fn through the breaker with context support.
// A cancelled or expired context counts as a failed outcome; fn keeps
// running in its goroutine until it returns on its own.
func (b *Breaker) ExecuteWithContext(ctx context.Context, fn func(ctx context.Context) error) error {
	gen, err := b.beforeRequest()
	if err != nil {
		return err
	}

	start := b.clock.Now()
	done := make(chan error, 1)

	go func() {
		defer func() {
			if e := recover(); e != nil {
				b.afterRequest(gen, b.clock.Now().Sub(start), errPanic)
				panic(e)
			}
		}()

		done <- fn(ctx)
	}()

	select {
	case <-ctx.Done():
		b.afterRequest(gen, b.clock.Now().Sub(start), ctx.Err())
		return ctx.Err()

	case err := <-done:
		b.afterRequest(gen, b.clock.Now().Sub(start), err)
		return err
	}
}

// ExecuteWithTimeout runs fn with a deadline. Exceeding the deadline is
// counted as a failure.
func (b *Breaker) ExecuteWithTimeout(fn func() error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return b.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return fn()
	})
}

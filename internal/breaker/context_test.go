package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mehmetyiter/callguard/internal/breaker"
)

func TestExecuteWithContext_Success(t *testing.T) {
	b := newTestBreaker(t, breaker.Config{})

	err := b.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}

	if stats := b.Stats(); stats.Successes != 1 {
		t.Errorf("Expected 1 success, got %d", stats.Successes)
	}
}

func TestExecuteWithContext_Canceled(t *testing.T) {
	b := newTestBreaker(t, breaker.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := b.ExecuteWithContext(ctx, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	// Cancellation counts against the breaker.
	if stats := b.Stats(); stats.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", stats.Failures)
	}
}

func TestExecuteWithContext_DeadlineExceeded(t *testing.T) {
	b := newTestBreaker(t, breaker.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.ExecuteWithContext(ctx, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestExecuteWithContext_RejectedWhenOpen(t *testing.T) {
	b := newTestBreaker(t, breaker.Config{})
	b.ForceOpen()

	invoked := false
	err := b.ExecuteWithContext(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})

	if !errors.Is(err, breaker.ErrBreakerOpen) {
		t.Errorf("Expected ErrBreakerOpen, got %v", err)
	}
	if invoked {
		t.Error("Operation should not run while the breaker is open")
	}
}

func TestExecuteWithTimeout_Success(t *testing.T) {
	b := newTestBreaker(t, breaker.Config{})

	err := b.ExecuteWithTimeout(func() error {
		return nil
	}, 100*time.Millisecond)
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}

func TestExecuteWithTimeout_Exceeded(t *testing.T) {
	b := newTestBreaker(t, breaker.Config{})

	err := b.ExecuteWithTimeout(func() error {
		time.Sleep(time.Second)
		return nil
	}, 20*time.Millisecond)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

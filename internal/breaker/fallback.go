package breaker

import "fmt"

// FallbackFunc provides fallback behavior when a guarded call fails or
// is rejected.
type FallbackFunc func(err error) error

// ExecuteWithFallback runs fn through g. If the breaker rejects the call
// or fn fails, the fallback is invoked with the original error.
func ExecuteWithFallback(g Guard, fn func() error, fallback FallbackFunc) error {
	err := g.Execute(fn)
	if err != nil {
		return fallback(err)
	}
	return nil
}

// ExecuteWithFallbackResult is the generic variant of ExecuteWithFallback
// for operations that return a value.
func ExecuteWithFallbackResult[T any](g Guard, fn func() (T, error), fallback func(error) (T, error)) (T, error) {
	result, err := Execute(g, fn)
	if err != nil {
		return fallback(err)
	}
	return result, nil
}

// IgnoreFallback swallows the error.
func IgnoreFallback() FallbackFunc {
	return func(err error) error {
		return nil
	}
}

// ReturnErrorFallback returns the original error unchanged.
func ReturnErrorFallback() FallbackFunc {
	return func(err error) error {
		return err
	}
}

// WrapErrorFallback annotates the error with additional context.
func WrapErrorFallback(message string) FallbackFunc {
	return func(err error) error {
		return fmt.Errorf("%s: %w", message, err)
	}
}

// DefaultValueFallback returns a fixed value whenever the call fails.
func DefaultValueFallback[T any](defaultValue T) func(error) (T, error) {
	return func(err error) (T, error) {
		return defaultValue, nil
	}
}

// CacheFallback serves a cached value when the breaker rejects the call.
func CacheFallback[T any](getCached func() (T, bool)) func(error) (T, error) {
	return func(err error) (T, error) {
		if cached, ok := getCached(); ok {
			return cached, nil
		}
		var zero T
		return zero, err
	}
}

// ChainedFallback tries fallbacks in order until one succeeds.
func ChainedFallback[T any](fallbacks ...func(error) (T, error)) func(error) (T, error) {
	return func(err error) (T, error) {
		for _, fb := range fallbacks {
			result, fbErr := fb(err)
			if fbErr == nil {
				return result, nil
			}
		}
		var zero T
		return zero, err
	}
}

package breaker

import "errors"

var (
	// ErrBreakerOpen is returned when a call is rejected because the
	// breaker is open and the probe delay has not elapsed yet.
	ErrBreakerOpen = errors.New("breaker is open")

	// ErrPredictiveBlock is returned when a call is rejected because the
	// predictive model forced the breaker open before the reactive
	// threshold was crossed.
	ErrPredictiveBlock = errors.New("breaker preemptively opened by prediction")

	// ErrDuplicateBreaker is returned by Registry.Create when a breaker
	// with the same name already exists.
	ErrDuplicateBreaker = errors.New("breaker already registered")

	// errPanic marks an operation that panicked so the outcome is
	// recorded as a failure before the panic is re-raised.
	errPanic = errors.New("operation panicked")
)

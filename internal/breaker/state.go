package breaker

import (
	"fmt"
	"time"
)

// State represents the breaker state
type State int

const (
	// StateClosed - calls pass through to the downstream dependency
	StateClosed State = iota

	// StateHalfOpen - the breaker is probing whether the dependency recovered
	StateHalfOpen

	// StateOpen - calls fail fast without reaching the dependency
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown state: %d", s)
	}
}

// Stats is a point-in-time snapshot of a breaker's counters.
// NextAttemptAt is meaningful only while the state is open; the
// timestamp fields are zero until the corresponding event occurs.
type Stats struct {
	Name          string
	ID            string
	State         State
	Requests      uint64
	Successes     uint64
	Failures      uint64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	NextAttemptAt time.Time
}

// Outcome describes the result of a single admission through a breaker.
// Rejected outcomes never reached the wrapped operation.
type Outcome struct {
	Success  bool
	Rejected bool
	Duration time.Duration
	Err      error
}

// Guard is the common contract shared by Breaker and PredictiveBreaker.
// The registry stores guards so plain and predictive breakers can share
// one table.
type Guard interface {
	Name() string
	State() State
	Execute(fn func() error) error
	Stats() Stats
	Reset()
	ForceOpen()
	ForceClose()
}

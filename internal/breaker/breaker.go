package breaker

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Breaker implements the circuit breaker state machine.
//
// All counter and state mutations happen under a single per-breaker
// mutex; unrelated breakers never contend. The open to half-open
// transition is lazy: it happens on the first admission check at or
// after the probe deadline, never on a background timer.
type Breaker struct {
	name  string
	id    string
	cfg   Config
	clock Clock

	mu            sync.Mutex
	state         State
	generation    uint64
	requests      uint64
	successes     uint64
	failures      uint64
	lastSuccessAt time.Time
	lastFailureAt time.Time
	nextAttemptAt time.Time
	window        *slidingWindow
}

// New creates a breaker. Unset config fields receive defaults; a config
// that is invalid after defaulting (negative thresholds, sub-millisecond
// durations) is rejected here rather than at call time.
func New(name string, cfg Config) (*Breaker, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Breaker{
		name:   name,
		id:     uuid.NewString(),
		cfg:    cfg,
		clock:  cfg.Clock,
		state:  StateClosed,
		window: newSlidingWindow(cfg.MonitoringWindow),
	}, nil
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// ID returns the unique instance identifier.
func (b *Breaker) ID() string { return b.id }

// Execute runs fn if the breaker admits the call.
//
// A rejected call returns ErrBreakerOpen and fn is never invoked.
// Otherwise fn runs and its error is returned verbatim; the breaker only
// observes whether it was nil.
func (b *Breaker) Execute(fn func() error) error {
	gen, err := b.beforeRequest()
	if err != nil {
		return err
	}

	start := b.clock.Now()

	defer func() {
		if e := recover(); e != nil {
			b.afterRequest(gen, b.clock.Now().Sub(start), errPanic)
			panic(e)
		}
	}()

	err = fn()
	b.afterRequest(gen, b.clock.Now().Sub(start), err)
	return err
}

// Execute runs fn through g and returns its result. Convenience wrapper
// for operations that return a value.
func Execute[T any](g Guard, fn func() (T, error)) (T, error) {
	var result T

	err := g.Execute(func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// State returns the current state, applying the lazy open-to-half-open
// check so callers observe half-open once the probe deadline passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && !b.clock.Now().Before(b.nextAttemptAt) {
		return StateHalfOpen
	}
	return b.state
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:          b.name,
		ID:            b.id,
		State:         b.state,
		Requests:      b.requests,
		Successes:     b.successes,
		Failures:      b.failures,
		LastSuccessAt: b.lastSuccessAt,
		LastFailureAt: b.lastFailureAt,
		NextAttemptAt: b.nextAttemptAt,
	}
}

// Reset returns the breaker to closed with all counters zeroed.
// Outcomes of calls still in flight are discarded.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.generation++
	b.setState(StateClosed, b.clock.Now())
	b.requests = 0
	b.successes = 0
	b.failures = 0
	b.lastSuccessAt = time.Time{}
	b.lastFailureAt = time.Time{}
	b.nextAttemptAt = time.Time{}
	b.window.reset()
}

// ForceOpen trips the breaker regardless of counters, arming the probe
// deadline as a reactive open would.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.generation++
	if b.state == StateOpen {
		// Re-arm the probe deadline.
		b.nextAttemptAt = now.Add(b.cfg.Timeout)
		return
	}
	b.setState(StateOpen, now)
}

// ForceClose closes the breaker regardless of counters.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.generation++
	b.setState(StateClosed, b.clock.Now())
}

// preemptiveReject records an admission attempt, trips the breaker
// open, and reports the call as rejected by the predictive model. The
// wrapped operation is never invoked for such calls.
func (b *Breaker) preemptiveReject() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.requests++
	b.window.recordRequest(now)
	b.generation++
	b.setState(StateOpen, now)
	b.emit(Outcome{Rejected: true, Err: ErrPredictiveBlock})
}

// beforeRequest records the admission attempt and decides whether the
// call may proceed.
func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.requests++
	b.window.recordRequest(now)

	if b.state == StateOpen {
		if now.Before(b.nextAttemptAt) {
			b.emit(Outcome{Rejected: true, Err: ErrBreakerOpen})
			return b.generation, ErrBreakerOpen
		}
		// Probe deadline reached: this call becomes the half-open trial.
		b.setState(StateHalfOpen, now)
	}

	return b.generation, nil
}

// afterRequest records the outcome of an admitted call and applies the
// transition rules. Outcomes from a superseded generation (reset or
// forced transition while the call was in flight) are discarded.
func (b *Breaker) afterRequest(gen uint64, duration time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return
	}

	now := b.clock.Now()
	if err == nil {
		b.onSuccess(now, duration)
	} else {
		b.onFailure(now, duration, err)
	}
}

func (b *Breaker) onSuccess(now time.Time, duration time.Duration) {
	b.successes++
	b.lastSuccessAt = now
	b.emit(Outcome{Success: true, Duration: duration})

	if b.state == StateHalfOpen && b.successes >= uint64(b.cfg.SuccessThreshold) {
		b.setState(StateClosed, now)
	}
}

func (b *Breaker) onFailure(now time.Time, duration time.Duration, err error) {
	b.failures++
	b.lastFailureAt = now
	b.window.recordFailure(now)
	b.emit(Outcome{Duration: duration, Err: err})

	switch b.state {
	case StateHalfOpen:
		// A single failure during the trial re-opens the breaker.
		b.setState(StateOpen, now)

	case StateClosed:
		requests, failures := b.window.counts(now)
		if requests >= b.cfg.VolumeThreshold && failures >= b.cfg.FailureThreshold {
			b.setState(StateOpen, now)
		}
	}
}

// setState transitions the breaker and applies the per-state side
// effects: entering open arms the probe deadline and zeroes successes,
// entering closed zeroes both outcome counters.
func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state

	switch state {
	case StateOpen:
		b.nextAttemptAt = now.Add(b.cfg.Timeout)
		b.successes = 0
	case StateClosed:
		b.failures = 0
		b.successes = 0
		b.nextAttemptAt = time.Time{}
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, prev, state)
	}
}

// emit publishes an outcome to the configured observer. Runs under the
// breaker lock; observers must be fast and non-blocking.
func (b *Breaker) emit(o Outcome) {
	if b.cfg.OnOutcome != nil {
		b.cfg.OnOutcome(b.name, o)
	}
}

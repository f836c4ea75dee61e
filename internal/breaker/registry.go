package breaker

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// RegistryStats aggregates counters across every registered breaker.
type RegistryStats struct {
	// Global counters, aggregated from outcome events across all
	// breakers since registry creation.
	Requests   uint64
	Successes  uint64
	Failures   uint64
	Rejections uint64

	// Breakers holds per-breaker snapshots keyed by name.
	Breakers map[string]Stats

	// Summary counts breakers by current state.
	Summary map[State]int
}

// BreakerHealth reports one breaker's contribution to overall health.
type BreakerHealth struct {
	State   State
	Healthy bool
}

// HealthStatus is the registry-wide health view polled by liveness and
// readiness reporters. A breaker is healthy unless it is open.
type HealthStatus struct {
	Healthy  bool
	Breakers map[string]BreakerHealth
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger attaches a logger for state transitions and lifecycle events.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics attaches Prometheus metrics for all registered breakers.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry is a process-wide table of breakers keyed by name. It
// aggregates outcome events into global counters and chains its own
// observers onto each breaker it creates. Construct one explicitly and
// pass it to whatever owns the process lifetime; Close releases the
// predictive evaluation loops.
type Registry struct {
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.RWMutex
	breakers map[string]Guard

	requests   atomic.Uint64
	successes  atomic.Uint64
	failures   atomic.Uint64
	rejections atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:   zap.NewNop(),
		breakers: make(map[string]Guard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new plain breaker. It returns ErrDuplicateBreaker
// when the name is already taken.
func (r *Registry) Create(name string, cfg Config) (*Breaker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.breakers[name]; exists {
		return nil, ErrDuplicateBreaker
	}

	b, err := New(name, r.instrument(cfg))
	if err != nil {
		return nil, err
	}

	r.breakers[name] = b
	r.logger.Info("breaker registered", zap.String("name", name), zap.String("id", b.ID()))
	return b, nil
}

// CreatePredictive registers a new predictive breaker. It returns
// ErrDuplicateBreaker when the name is already taken.
func (r *Registry) CreatePredictive(name string, cfg PredictiveConfig) (*PredictiveBreaker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.breakers[name]; exists {
		return nil, ErrDuplicateBreaker
	}

	cfg.Config = r.instrument(cfg.Config)
	cfg.OnPrediction = r.chainPrediction(cfg.OnPrediction)

	p, err := NewPredictive(name, cfg)
	if err != nil {
		return nil, err
	}

	r.breakers[name] = p
	r.logger.Info("predictive breaker registered", zap.String("name", name), zap.String("id", p.ID()))
	return p, nil
}

// Get returns the named breaker, or nil when it does not exist.
func (r *Registry) Get(name string) Guard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.breakers[name]
	if !ok {
		return nil
	}
	return g
}

// GetOrCreate returns the named breaker, creating a plain one with cfg
// if it does not exist yet. Idempotent: an existing breaker is returned
// regardless of its kind or configuration.
func (r *Registry) GetOrCreate(name string, cfg Config) (Guard, error) {
	if g := r.Get(name); g != nil {
		return g, nil
	}

	b, err := r.Create(name, cfg)
	if err == ErrDuplicateBreaker {
		// Lost the creation race; the winner's breaker is authoritative.
		return r.Get(name), nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetOrCreatePredictive returns the named breaker, creating a
// predictive one with cfg if it does not exist yet.
func (r *Registry) GetOrCreatePredictive(name string, cfg PredictiveConfig) (Guard, error) {
	if g := r.Get(name); g != nil {
		return g, nil
	}

	p, err := r.CreatePredictive(name, cfg)
	if err == ErrDuplicateBreaker {
		return r.Get(name), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Remove deletes the named breaker, stopping its evaluation loop when
// it is predictive. It reports whether a breaker was removed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	g, ok := r.breakers[name]
	if ok {
		delete(r.breakers, name)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if closer, ok := g.(interface{ Close() }); ok {
		closer.Close()
	}
	if r.metrics != nil {
		r.metrics.Remove(name)
	}
	r.logger.Info("breaker removed", zap.String("name", name))
	return true
}

// ResetAll resets every registered breaker to closed with zeroed
// counters. Global aggregates are not rewound; they count since
// registry creation.
func (r *Registry) ResetAll() {
	for _, g := range r.snapshot() {
		g.Reset()
	}
	r.logger.Info("all breakers reset")
}

// Stats returns global aggregates, per-breaker snapshots and a summary
// of breaker counts by state.
func (r *Registry) Stats() RegistryStats {
	stats := RegistryStats{
		Requests:   r.requests.Load(),
		Successes:  r.successes.Load(),
		Failures:   r.failures.Load(),
		Rejections: r.rejections.Load(),
		Breakers:   make(map[string]Stats),
		Summary:    make(map[State]int),
	}

	for _, g := range r.snapshot() {
		s := g.Stats()
		// Report the lazy state view everywhere, so an overdue open
		// breaker shows as half-open in both the snapshot and the
		// summary, matching HealthStatus.
		s.State = g.State()
		stats.Breakers[s.Name] = s
		stats.Summary[s.State]++
	}

	return stats
}

// HealthStatus reports overall health: healthy unless any breaker is open.
func (r *Registry) HealthStatus() HealthStatus {
	status := HealthStatus{
		Healthy:  true,
		Breakers: make(map[string]BreakerHealth),
	}

	for _, g := range r.snapshot() {
		state := g.State()
		healthy := state != StateOpen
		status.Breakers[g.Name()] = BreakerHealth{State: state, Healthy: healthy}
		if !healthy {
			status.Healthy = false
		}
	}

	return status
}

// Close stops every predictive evaluation loop and empties the table.
func (r *Registry) Close() {
	r.mu.Lock()
	breakers := r.breakers
	r.breakers = make(map[string]Guard)
	r.mu.Unlock()

	for _, g := range breakers {
		if closer, ok := g.(interface{ Close() }); ok {
			closer.Close()
		}
	}
	r.logger.Info("registry closed", zap.Int("breakers", len(breakers)))
}

// snapshot copies the current breaker set so registry-wide operations
// never hold the table lock while touching individual breakers.
func (r *Registry) snapshot() []Guard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Guard, 0, len(r.breakers))
	for _, g := range r.breakers {
		out = append(out, g)
	}
	return out
}

// instrument chains the registry's aggregation, logging and metrics
// observers onto a breaker config, preserving any user callbacks.
func (r *Registry) instrument(cfg Config) Config {
	userOutcome := cfg.OnOutcome
	cfg.OnOutcome = func(name string, o Outcome) {
		r.requests.Add(1)
		switch {
		case o.Rejected:
			r.rejections.Add(1)
		case o.Success:
			r.successes.Add(1)
		default:
			r.failures.Add(1)
		}

		if r.metrics != nil {
			r.metrics.RecordOutcome(name, o)
		}
		if userOutcome != nil {
			userOutcome(name, o)
		}
	}

	userStateChange := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to State) {
		r.logger.Info("breaker state changed",
			zap.String("name", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if r.metrics != nil {
			r.metrics.RecordStateChange(name, from, to)
		}
		if userStateChange != nil {
			userStateChange(name, from, to)
		}
	}

	return cfg
}

// chainPrediction adds metrics and logging to the prediction observer.
func (r *Registry) chainPrediction(user func(name string, p PredictionResult)) func(string, PredictionResult) {
	return func(name string, p PredictionResult) {
		if r.metrics != nil {
			r.metrics.RecordPrediction(name, p)
		}
		if p.FailureProbability >= criticalErrorRate {
			r.logger.Warn("failure predicted",
				zap.String("name", name),
				zap.Float64("probability", p.FailureProbability),
				zap.Float64("confidence", p.Confidence),
				zap.Stringer("trend", p.Trend),
			)
		}
		if user != nil {
			user(name, p)
		}
	}
}

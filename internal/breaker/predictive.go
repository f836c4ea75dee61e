package breaker

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// preemptiveConfidenceFloor is the minimum prediction confidence
// required before the preemptive open rule may fire.
const preemptiveConfidenceFloor = 0.7

// predictionRetention is how many PredictionResults are kept for
// inspection, oldest discarded.
const predictionRetention = 50

// PredictiveConfig extends Config with the predictive model settings.
type PredictiveConfig struct {
	Config

	// PredictionWindow bounds metric sample retention.
	PredictionWindow time.Duration

	// PredictionSamples is the minimum sample count before the model
	// produces predictions, and the summary-statistics window size.
	PredictionSamples int

	// AnomalyThreshold is the anomaly score above which the model flags
	// latency as anomalous in its recommendations.
	AnomalyThreshold float64

	// TrendSensitivity scales the trend classification thresholds.
	// Values above 1 make the classifier react to smaller changes.
	TrendSensitivity float64

	// PreemptiveOpenThreshold is the failure probability at which a
	// closed breaker is forced open before the reactive threshold fires.
	PreemptiveOpenThreshold float64

	// AdaptiveThresholds enables percentile threshold recomputation.
	AdaptiveThresholds bool

	// EvaluationInterval is the background prediction tick period.
	EvaluationInterval time.Duration

	// ResourceProbe, when set, is sampled on every completed call to
	// attach a resource snapshot to the metric sample.
	ResourceProbe func() ResourceSnapshot

	// OnPrediction is called after each evaluation that produced a
	// result. It runs under the predictive breaker's lock and must not
	// block.
	OnPrediction func(name string, p PredictionResult)
}

// DefaultPredictiveConfig returns the defaults applied to unset
// PredictiveConfig fields.
func DefaultPredictiveConfig() PredictiveConfig {
	return PredictiveConfig{
		Config:                  DefaultConfig(),
		PredictionWindow:        5 * time.Minute,
		PredictionSamples:       20,
		AnomalyThreshold:        3.0,
		TrendSensitivity:        1.0,
		PreemptiveOpenThreshold: 0.8,
		AdaptiveThresholds:      true,
		EvaluationInterval:      10 * time.Second,
	}
}

// Validate checks the predictive settings after defaults have been applied.
func (c PredictiveConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.PredictionWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.PredictionSamples, validation.Required, validation.Min(3)),
		validation.Field(&c.AnomalyThreshold, validation.Min(0.0), validation.Max(anomalyScoreCap)),
		validation.Field(&c.TrendSensitivity, validation.Required, validation.Min(0.1)),
		validation.Field(&c.PreemptiveOpenThreshold, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.EvaluationInterval, validation.Required, validation.Min(time.Millisecond)),
	)
}

func (c PredictiveConfig) withDefaults() PredictiveConfig {
	def := DefaultPredictiveConfig()
	c.Config = c.Config.withDefaults()

	if c.PredictionWindow == 0 {
		c.PredictionWindow = def.PredictionWindow
	}
	if c.PredictionSamples == 0 {
		c.PredictionSamples = def.PredictionSamples
	}
	if c.AnomalyThreshold == 0 {
		c.AnomalyThreshold = def.AnomalyThreshold
	}
	if c.TrendSensitivity == 0 {
		c.TrendSensitivity = def.TrendSensitivity
	}
	if c.PreemptiveOpenThreshold == 0 {
		c.PreemptiveOpenThreshold = def.PreemptiveOpenThreshold
	}
	if c.EvaluationInterval == 0 {
		c.EvaluationInterval = def.EvaluationInterval
	}

	return c
}

// PredictiveBreaker decorates a plain Breaker with the metric history,
// statistics engine and predictive failure model. It exposes the same
// Execute contract; below PredictionSamples recorded samples it behaves
// exactly like the plain state machine.
type PredictiveBreaker struct {
	inner *Breaker
	cfg   PredictiveConfig
	clock Clock
	model predictor

	mu          sync.Mutex
	history     *sampleHistory
	predictions []PredictionResult
	adaptive    *AdaptiveThresholds
	sinceAdapt  int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewPredictive creates a predictive breaker and starts its background
// evaluation tick. Call Close to release the ticker.
func NewPredictive(name string, cfg PredictiveConfig) (*PredictiveBreaker, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	inner, err := New(name, cfg.Config)
	if err != nil {
		return nil, err
	}

	p := &PredictiveBreaker{
		inner:   inner,
		cfg:     cfg,
		clock:   cfg.Config.Clock,
		model:   predictor{cfg: cfg},
		history: newSampleHistory(cfg.PredictionWindow),
		stop:    make(chan struct{}),
	}

	go p.evaluationLoop()

	return p, nil
}

// Name returns the breaker name.
func (p *PredictiveBreaker) Name() string { return p.inner.Name() }

// ID returns the unique instance identifier.
func (p *PredictiveBreaker) ID() string { return p.inner.ID() }

// State returns the current state of the underlying breaker.
func (p *PredictiveBreaker) State() State { return p.inner.State() }

// Stats returns a snapshot of the underlying breaker's counters.
func (p *PredictiveBreaker) Stats() Stats { return p.inner.Stats() }

// Inner exposes the wrapped plain breaker.
func (p *PredictiveBreaker) Inner() *Breaker { return p.inner }

// Execute runs fn through the breaker with the predictive pre-check
// applied first. A preemptively blocked call returns ErrPredictiveBlock,
// forces the breaker open, and never invokes fn. Completed calls are
// recorded as metric samples; rejected calls are not.
func (p *PredictiveBreaker) Execute(fn func() error) error {
	if p.shouldPreempt() {
		p.inner.preemptiveReject()
		return ErrPredictiveBlock
	}

	start := p.clock.Now()

	defer func() {
		if e := recover(); e != nil {
			// The inner breaker already counted the panic as a failure;
			// the metric history must see the call too.
			p.record(p.clock.Now(), p.clock.Now().Sub(start), errPanic)
			panic(e)
		}
	}()

	err := p.inner.Execute(fn)
	if err == ErrBreakerOpen {
		return err
	}

	p.record(p.clock.Now(), p.clock.Now().Sub(start), err)
	return err
}

// ExecuteWithContext is the context-aware variant of Execute. It shares
// the plain breaker's cancellation semantics and records completed
// calls as metric samples the same way Execute does.
func (p *PredictiveBreaker) ExecuteWithContext(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.shouldPreempt() {
		p.inner.preemptiveReject()
		return ErrPredictiveBlock
	}

	start := p.clock.Now()
	err := p.inner.ExecuteWithContext(ctx, fn)
	if err == ErrBreakerOpen {
		return err
	}

	p.record(p.clock.Now(), p.clock.Now().Sub(start), err)
	return err
}

// ExecuteWithTimeout runs fn with a deadline through the predictive
// breaker. Exceeding the deadline counts as a failure.
func (p *PredictiveBreaker) ExecuteWithTimeout(fn func() error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return p.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return fn()
	})
}

// shouldPreempt evaluates the model synchronously on the admission path
// while the breaker is closed.
func (p *PredictiveBreaker) shouldPreempt() bool {
	if p.inner.State() != StateClosed {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	result, ok := p.evaluateLocked(p.clock.Now())
	if !ok {
		return false
	}

	return result.FailureProbability >= p.cfg.PreemptiveOpenThreshold &&
		result.Confidence >= preemptiveConfidenceFloor
}

// record appends a completed call to the metric history and recomputes
// adaptive thresholds when the sample counter crosses PredictionSamples.
func (p *PredictiveBreaker) record(now time.Time, duration time.Duration, err error) {
	sample := MetricSample{
		Timestamp:    now,
		ResponseTime: duration,
		Success:      err == nil,
		Class:        Classify(err),
	}
	if p.cfg.ResourceProbe != nil {
		snapshot := p.cfg.ResourceProbe()
		sample.Resources = &snapshot
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.history.add(sample)

	if p.cfg.AdaptiveThresholds {
		p.sinceAdapt++
		if p.sinceAdapt >= p.cfg.PredictionSamples {
			thresholds := computeAdaptiveThresholds(p.history, now)
			p.adaptive = &thresholds
			p.sinceAdapt = 0
		}
	}
}

// evaluationLoop drives the periodic prediction tick, independent of
// call volume.
func (p *PredictiveBreaker) evaluationLoop() {
	ticker := time.NewTicker(p.cfg.EvaluationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.evaluateLocked(p.clock.Now())
			p.mu.Unlock()
		}
	}
}

// evaluateLocked runs the model and retains the result. Callers hold p.mu.
func (p *PredictiveBreaker) evaluateLocked(now time.Time) (PredictionResult, bool) {
	result, ok := p.model.evaluate(p.history, now)
	if !ok {
		return PredictionResult{}, false
	}

	p.predictions = append(p.predictions, result)
	if len(p.predictions) > predictionRetention {
		p.predictions = p.predictions[len(p.predictions)-predictionRetention:]
	}

	if p.cfg.OnPrediction != nil {
		p.cfg.OnPrediction(p.inner.Name(), result)
	}

	return result, true
}

// LatestPrediction returns the most recent evaluation, or nil when the
// model has not produced one yet.
func (p *PredictiveBreaker) LatestPrediction() *PredictionResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.predictions) == 0 {
		return nil
	}
	result := p.predictions[len(p.predictions)-1]
	return &result
}

// Predictions returns the retained evaluations, oldest first.
func (p *PredictiveBreaker) Predictions() []PredictionResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PredictionResult, len(p.predictions))
	copy(out, p.predictions)
	return out
}

// AdaptiveThresholds returns the latest adapted thresholds, or nil when
// none have been computed yet.
func (p *PredictiveBreaker) AdaptiveThresholds() *AdaptiveThresholds {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.adaptive == nil {
		return nil
	}
	thresholds := *p.adaptive
	return &thresholds
}

// PredictionAccuracy reports the model's self-assessed accuracy. There
// is no outcome-feedback loop; this is a fixed estimate.
func (p *PredictiveBreaker) PredictionAccuracy() float64 { return 0.75 }

// Reset returns the breaker to closed and clears the metric history,
// retained predictions and adaptive thresholds.
func (p *PredictiveBreaker) Reset() {
	p.inner.Reset()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.history.reset()
	p.predictions = nil
	p.adaptive = nil
	p.sinceAdapt = 0
}

// ForceOpen trips the underlying breaker.
func (p *PredictiveBreaker) ForceOpen() { p.inner.ForceOpen() }

// ForceClose closes the underlying breaker.
func (p *PredictiveBreaker) ForceClose() { p.inner.ForceClose() }

// Close stops the background evaluation tick. Safe to call repeatedly.
func (p *PredictiveBreaker) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

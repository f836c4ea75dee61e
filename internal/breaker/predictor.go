package breaker

import (
	"math"
	"time"
)

// Trend classifies the short-term direction of a dependency's health.
type Trend int

const (
	TrendStable Trend = iota
	TrendImproving
	TrendDegrading
	TrendCritical
)

// String returns the string representation of the trend.
func (t Trend) String() string {
	switch t {
	case TrendImproving:
		return "improving"
	case TrendDegrading:
		return "degrading"
	case TrendCritical:
		return "critical"
	default:
		return "stable"
	}
}

// PredictionResult is one evaluation of the predictive failure model.
type PredictionResult struct {
	FailureProbability   float64
	ExpectedResponseTime time.Duration
	AnomalyScore         float64
	Trend                Trend
	Confidence           float64
	Recommendations      []string
	PredictedFailureAt   time.Time
	EvaluatedAt          time.Time
}

// Fixed weights of the failure-probability blend. The model is a
// deterministic heuristic, not a learned one.
const (
	responseTimeWeight = 0.3
	errorRateWeight    = 0.4
	trendWeight        = 0.2
	resourceWeight     = 0.1
)

// criticalErrorRate is the error rate treated as certain failure when
// extrapolating time-to-failure.
const criticalErrorRate = 0.5

// anomalyScoreCap bounds the anomaly score.
const anomalyScoreCap = 10.0

// errorRatePenaltyFactor converts error rate above 10% into additive
// anomaly score.
const errorRatePenaltyFactor = 10.0

// trendMultiplier weighs the failure probability by trend direction.
func trendMultiplier(t Trend) float64 {
	switch t {
	case TrendImproving:
		return 0.7
	case TrendDegrading:
		return 1.5
	case TrendCritical:
		return 2.0
	default:
		return 1.0
	}
}

// predictor computes PredictionResults from a sample history.
type predictor struct {
	cfg PredictiveConfig
}

// evaluate runs the model over the history. It returns false while the
// history holds fewer than PredictionSamples samples: no prediction is
// produced and the preemptive rule never fires.
func (p *predictor) evaluate(h *sampleHistory, now time.Time) (PredictionResult, bool) {
	h.evict(now)
	if h.len() < p.cfg.PredictionSamples {
		return PredictionResult{}, false
	}

	recent := h.last(p.cfg.PredictionSamples)

	rts := make([]float64, len(recent))
	failures := 0
	for i, s := range recent {
		rts[i] = float64(s.ResponseTime) / float64(time.Millisecond)
		if !s.Success {
			failures++
		}
	}
	errorRate := float64(failures) / float64(len(recent))

	latest := h.lastAverages(1)[0]
	anomaly := p.anomalyScore(h, errorRate)
	trend := p.trend(h)
	probability := p.failureProbability(errorRate, anomaly, trend, latest.resourcePressure)
	confidence := p.confidence(h, rts)

	result := PredictionResult{
		FailureProbability:   probability,
		ExpectedResponseTime: time.Duration(latest.responseTimeMs * float64(time.Millisecond)),
		AnomalyScore:         anomaly,
		Trend:                trend,
		Confidence:           confidence,
		EvaluatedAt:          now,
	}

	if trend == TrendDegrading || trend == TrendCritical {
		result.PredictedFailureAt = p.timeToFailure(h, now)
	}

	result.Recommendations = p.recommendations(recent, result, latest.resourcePressure)

	return result, true
}

// anomalyScore is the absolute z-score of the latest moving-average
// response time against the historical moving-average distribution,
// plus an additive penalty proportional to error rate above 10%.
func (p *predictor) anomalyScore(h *sampleHistory, errorRate float64) float64 {
	series := make([]float64, len(h.averages))
	for i, a := range h.averages {
		series[i] = a.responseTimeMs
	}

	var z float64
	if sd := stddev(series); sd > 0 {
		z = math.Abs(series[len(series)-1]-mean(series)) / sd
	}

	if errorRate > 0.1 {
		z += (errorRate - 0.1) * errorRatePenaltyFactor
	}

	return math.Min(z, anomalyScoreCap)
}

// trend compares the mean of the last three moving-average points to
// the mean of the prior three. Thresholds scale inversely with
// TrendSensitivity.
func (p *predictor) trend(h *sampleHistory) Trend {
	points := h.lastAverages(6)
	if len(points) < 6 {
		return TrendStable
	}

	var prevRT, prevER, lastRT, lastER float64
	for i := 0; i < 3; i++ {
		prevRT += points[i].responseTimeMs
		prevER += points[i].errorRate
		lastRT += points[i+3].responseTimeMs
		lastER += points[i+3].errorRate
	}
	prevRT, prevER = prevRT/3, prevER/3
	lastRT, lastER = lastRT/3, lastER/3

	var rtChange float64
	if prevRT > 0 {
		rtChange = (lastRT - prevRT) / prevRT
	}
	erChange := lastER - prevER

	s := p.cfg.TrendSensitivity

	switch {
	case rtChange > 0.5/s || erChange > 0.3/s:
		return TrendCritical
	case rtChange > 0.2/s || erChange > 0.1/s:
		return TrendDegrading
	case rtChange < -0.1/s && erChange <= 0:
		return TrendImproving
	default:
		return TrendStable
	}
}

// failureProbability blends error rate, anomaly, trend and resource
// pressure with the fixed weights, clamped to [0,1].
func (p *predictor) failureProbability(errorRate, anomaly float64, trend Trend, pressure float64) float64 {
	probability := errorRate*errorRateWeight + (anomaly/anomalyScoreCap)*responseTimeWeight
	probability *= 1 + (trendMultiplier(trend)-1)*trendWeight
	probability += pressure * resourceWeight
	return clamp01(probability)
}

// confidence blends response-time dispersion, sample-count adequacy and
// moving-average stability.
func (p *predictor) confidence(h *sampleHistory, rts []float64) float64 {
	var dispersion float64
	if m := mean(rts); m > 0 {
		dispersion = 1 - math.Min(stddev(rts)/m, 1)
	}

	adequacy := math.Min(float64(h.len())/float64(2*p.cfg.PredictionSamples), 1)

	stability := 1.0
	last5 := h.lastAverages(5)
	series := make([]float64, len(last5))
	for i, a := range last5 {
		series[i] = a.responseTimeMs
	}
	if m := mean(series); m > 0 {
		stability = math.Max(1-stddev(series)/m, 0)
	}

	return clamp01((dispersion + adequacy + stability) / 3)
}

// timeToFailure linear-regresses the error-rate moving average and
// extrapolates when it would reach the critical rate. Zero time means
// no extrapolation was possible.
func (p *predictor) timeToFailure(h *sampleHistory, now time.Time) time.Time {
	points := h.lastAverages(10)
	if len(points) < 2 {
		return time.Time{}
	}

	times := make([]time.Time, len(points))
	rates := make([]float64, len(points))
	for i, a := range points {
		times[i] = a.at
		rates[i] = a.errorRate
	}

	slope, ok := regressSlope(times, rates)
	if !ok || slope <= 0 {
		return time.Time{}
	}

	current := rates[len(rates)-1]
	if current >= criticalErrorRate {
		return now
	}

	deltaMs := (criticalErrorRate - current) / slope
	return now.Add(time.Duration(deltaMs * float64(time.Millisecond)))
}

// recommendations derives short operator hints from the evaluation.
func (p *predictor) recommendations(recent []MetricSample, r PredictionResult, pressure float64) []string {
	var recs []string

	if r.AnomalyScore >= p.cfg.AnomalyThreshold {
		recs = append(recs, "response time is anomalous; inspect downstream latency")
	}

	classCounts := make(map[ErrorClass]int)
	for _, s := range recent {
		if !s.Success {
			classCounts[s.Class]++
		}
	}
	var dominant ErrorClass
	var dominantCount int
	for class, count := range classCounts {
		if count > dominantCount {
			dominant, dominantCount = class, count
		}
	}
	if dominantCount > 0 {
		switch dominant {
		case ErrorClassTimeout:
			recs = append(recs, "timeouts dominate failures; consider raising client timeouts or shedding load")
		case ErrorClassConnection:
			recs = append(recs, "connection errors dominate failures; check downstream availability")
		case ErrorClassRateLimit:
			recs = append(recs, "rate limiting detected; reduce request rate")
		case ErrorClassAuth:
			recs = append(recs, "authentication failures detected; verify credentials")
		case ErrorClassMemory:
			recs = append(recs, "memory pressure errors detected; check downstream resources")
		}
	}

	if pressure > 0.7 {
		recs = append(recs, "resource pressure is high; scale the downstream dependency")
	}

	switch r.Trend {
	case TrendCritical:
		recs = append(recs, "dependency health is deteriorating rapidly; prepare fallbacks")
	case TrendDegrading:
		recs = append(recs, "dependency health is degrading; monitor closely")
	}

	if len(recs) == 0 {
		recs = append(recs, "dependency operating normally")
	}

	return recs
}

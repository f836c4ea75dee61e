package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPredictor(samples int) predictor {
	cfg := PredictiveConfig{PredictionSamples: samples}.withDefaults()
	return predictor{cfg: cfg}
}

func TestPredictor_NoPredictionBelowSampleMinimum(t *testing.T) {
	p := testPredictor(10)
	h := newSampleHistory(time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 9; i++ {
		h.add(sampleAt(base.Add(time.Duration(i)*time.Second), 100, true))
	}

	_, ok := p.evaluate(h, base.Add(10*time.Second))
	assert.False(t, ok, "no prediction may be produced below the sample minimum")
}

func TestPredictor_AnomalyMonotonicity(t *testing.T) {
	p := testPredictor(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Error rate held at zero; only the final response time deviates
	// from the historical mean.
	anomalyFor := func(finalMs int) float64 {
		h := newSampleHistory(time.Hour)
		for i := 0; i < 30; i++ {
			rt := 80
			if i%2 == 1 {
				rt = 120
			}
			h.add(sampleAt(base.Add(time.Duration(i)*time.Second), rt, true))
		}
		h.add(sampleAt(base.Add(31*time.Second), finalMs, true))

		result, ok := p.evaluate(h, base.Add(31*time.Second))
		require.True(t, ok)
		return result.AnomalyScore
	}

	small := anomalyFor(150)
	medium := anomalyFor(300)
	large := anomalyFor(600)

	assert.LessOrEqual(t, small, medium)
	assert.LessOrEqual(t, medium, large)
	assert.Greater(t, large, small, "a larger deviation must raise the anomaly score")
}

func TestPredictor_AnomalyErrorRatePenalty(t *testing.T) {
	p := testPredictor(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Constant response times: the z-score contribution is zero, so the
	// score is the pure error-rate penalty.
	h := newSampleHistory(time.Hour)
	for i := 0; i < 10; i++ {
		h.add(sampleAt(base.Add(time.Duration(i)*time.Second), 100, i < 5))
	}

	result, ok := p.evaluate(h, base.Add(10*time.Second))
	require.True(t, ok)

	// Error rate 0.5: penalty (0.5-0.1)*10 = 4.
	assert.InDelta(t, 4.0, result.AnomalyScore, 0.001)
}

func TestPredictor_TrendClassification(t *testing.T) {
	p := testPredictor(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	makeHistory := func(rts [6]float64, ers [6]float64) *sampleHistory {
		h := newSampleHistory(time.Hour)
		for i := 0; i < 6; i++ {
			h.averages = append(h.averages, movingAveragePoint{
				at:             base.Add(time.Duration(i) * time.Second),
				responseTimeMs: rts[i],
				errorRate:      ers[i],
			})
		}
		return h
	}

	cases := []struct {
		name string
		rts  [6]float64
		ers  [6]float64
		want Trend
	}{
		{
			name: "critical on response time jump",
			rts:  [6]float64{100, 100, 100, 160, 160, 160},
			want: TrendCritical,
		},
		{
			name: "critical on error rate jump",
			rts:  [6]float64{100, 100, 100, 100, 100, 100},
			ers:  [6]float64{0, 0, 0, 0.35, 0.35, 0.35},
			want: TrendCritical,
		},
		{
			name: "degrading on moderate slowdown",
			rts:  [6]float64{100, 100, 100, 130, 130, 130},
			want: TrendDegrading,
		},
		{
			name: "degrading on moderate error increase",
			rts:  [6]float64{100, 100, 100, 100, 100, 100},
			ers:  [6]float64{0, 0, 0, 0.15, 0.15, 0.15},
			want: TrendDegrading,
		},
		{
			name: "improving on speedup without new errors",
			rts:  [6]float64{100, 100, 100, 85, 85, 85},
			want: TrendImproving,
		},
		{
			name: "stable when nothing moves",
			rts:  [6]float64{100, 100, 100, 100, 100, 100},
			want: TrendStable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := makeHistory(tc.rts, tc.ers)
			assert.Equal(t, tc.want, p.trend(h))
		})
	}
}

func TestPredictor_TrendSensitivityScalesThresholds(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h := newSampleHistory(time.Hour)
	for i := 0; i < 6; i++ {
		rt := 100.0
		if i >= 3 {
			rt = 130
		}
		h.averages = append(h.averages, movingAveragePoint{
			at:             base.Add(time.Duration(i) * time.Second),
			responseTimeMs: rt,
		})
	}

	// A 30% slowdown is degrading at sensitivity 1 but critical at 2.
	relaxed := testPredictor(10)
	assert.Equal(t, TrendDegrading, relaxed.trend(h))

	strict := testPredictor(10)
	strict.cfg.TrendSensitivity = 2.0
	assert.Equal(t, TrendCritical, strict.trend(h))
}

func TestPredictor_FailureProbabilityWeights(t *testing.T) {
	p := testPredictor(10)

	cases := []struct {
		name      string
		errorRate float64
		anomaly   float64
		trend     Trend
		pressure  float64
		want      float64
	}{
		{"quiet", 0, 0, TrendStable, 0, 0},
		{"pure error rate", 0.5, 0, TrendStable, 0, 0.2},
		{"anomaly contribution", 0, 10, TrendStable, 0, 0.3},
		{"stable full load", 1, 10, TrendStable, 1, 0.8},
		{"critical multiplier", 1, 10, TrendCritical, 0, 0.84},
		{"improving discount", 1, 10, TrendImproving, 0, 0.658},
		{"critical full load", 1, 10, TrendCritical, 1, 0.94},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.failureProbability(tc.errorRate, tc.anomaly, tc.trend, tc.pressure)
			assert.InDelta(t, tc.want, got, 0.001)
		})
	}
}

func TestPredictor_ConfidenceGrowsWithSamples(t *testing.T) {
	p := testPredictor(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	confidenceAt := func(n int) float64 {
		h := newSampleHistory(time.Hour)
		for i := 0; i < n; i++ {
			h.add(sampleAt(base.Add(time.Duration(i)*time.Second), 100, true))
		}
		result, ok := p.evaluate(h, base.Add(time.Duration(n)*time.Second))
		require.True(t, ok)
		return result.Confidence
	}

	// Constant latencies: only the sample-count adequacy term moves.
	low := confidenceAt(10)
	high := confidenceAt(20)

	assert.Less(t, low, high)
	assert.InDelta(t, 1.0, high, 0.001)
}

func TestPredictor_TimeToFailure(t *testing.T) {
	p := testPredictor(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h := newSampleHistory(time.Hour)
	// Error rate climbs 0.05 per second and sits at 0.45: the critical
	// rate of 0.5 is one second out.
	for i := 0; i < 10; i++ {
		h.averages = append(h.averages, movingAveragePoint{
			at:        base.Add(time.Duration(i) * time.Second),
			errorRate: 0.05 * float64(i),
		})
	}

	now := base.Add(9 * time.Second)
	predicted := p.timeToFailure(h, now)
	require.False(t, predicted.IsZero())
	assert.InDelta(t, float64(now.Add(time.Second).UnixMilli()), float64(predicted.UnixMilli()), 50)
}

func TestPredictor_NoTimeToFailureWhenFlat(t *testing.T) {
	p := testPredictor(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h := newSampleHistory(time.Hour)
	for i := 0; i < 10; i++ {
		h.averages = append(h.averages, movingAveragePoint{
			at:        base.Add(time.Duration(i) * time.Second),
			errorRate: 0.2,
		})
	}

	assert.True(t, p.timeToFailure(h, base.Add(9*time.Second)).IsZero())
}

func TestComputeAdaptiveThresholds(t *testing.T) {
	h := newSampleHistory(time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 10; i++ {
		h.add(sampleAt(base.Add(time.Duration(i)*time.Second), i*10, i != 1))
	}

	now := base.Add(time.Minute)
	thresholds := computeAdaptiveThresholds(h, now)

	assert.Equal(t, 50*time.Millisecond, thresholds.P50)
	assert.Equal(t, 100*time.Millisecond, thresholds.P95)
	assert.Equal(t, 100*time.Millisecond, thresholds.P99)
	// 1.5x the observed 10% error rate.
	assert.InDelta(t, 0.15, thresholds.ErrorRate, 0.001)
	assert.Equal(t, now, thresholds.AdaptedAt)
}

func TestComputeAdaptiveThresholds_ErrorRateFloor(t *testing.T) {
	h := newSampleHistory(time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		h.add(sampleAt(base.Add(time.Duration(i)*time.Second), 100, true))
	}

	thresholds := computeAdaptiveThresholds(h, base.Add(time.Minute))
	assert.InDelta(t, minAdaptiveErrorRate, thresholds.ErrorRate, 0.001)
}

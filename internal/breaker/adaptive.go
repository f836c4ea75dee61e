package breaker

import "time"

// AdaptiveThresholds are latency percentiles and an error-rate ceiling
// recomputed from the live sample window. Each recomputation supersedes
// the previous value entirely.
type AdaptiveThresholds struct {
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	ErrorRate float64
	AdaptedAt time.Time
}

// minAdaptiveErrorRate floors the adapted error-rate ceiling.
const minAdaptiveErrorRate = 0.05

// computeAdaptiveThresholds derives thresholds from every sample still
// inside the retention window.
func computeAdaptiveThresholds(h *sampleHistory, now time.Time) AdaptiveThresholds {
	rts := make([]float64, len(h.samples))
	failures := 0
	for i, s := range h.samples {
		rts[i] = float64(s.ResponseTime) / float64(time.Millisecond)
		if !s.Success {
			failures++
		}
	}

	var errorRate float64
	if len(h.samples) > 0 {
		errorRate = float64(failures) / float64(len(h.samples))
	}

	ceiling := 1.5 * errorRate
	if ceiling < minAdaptiveErrorRate {
		ceiling = minAdaptiveErrorRate
	}

	return AdaptiveThresholds{
		P50:       time.Duration(percentile(rts, 50) * float64(time.Millisecond)),
		P95:       time.Duration(percentile(rts, 95) * float64(time.Millisecond)),
		P99:       time.Duration(percentile(rts, 99) * float64(time.Millisecond)),
		ErrorRate: ceiling,
		AdaptedAt: now,
	}
}

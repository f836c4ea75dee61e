package breaker

import (
	"math"
	"sort"
	"time"
)

// mean returns the arithmetic mean, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev returns the population standard deviation, 0 for fewer than
// two values.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// percentile returns the nearest-rank percentile (p in [0,100]) of the
// values, 0 for an empty slice.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// regressSlope fits a least-squares line to (t, v) points and returns
// the slope in value units per millisecond. The second return is false
// when the points cannot determine a slope.
func regressSlope(times []time.Time, values []float64) (float64, bool) {
	n := len(values)
	if n < 2 || len(times) != n {
		return 0, false
	}

	origin := times[0]
	xs := make([]float64, n)
	for i, t := range times {
		xs[i] = float64(t.Sub(origin)) / float64(time.Millisecond)
	}

	mx := mean(xs)
	my := mean(values)

	var num, den float64
	for i := range xs {
		dx := xs[i] - mx
		num += dx * (values[i] - my)
		den += dx * dx
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package breaker

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorClass categorizes call failures for the predictive model.
type ErrorClass int

const (
	ErrorClassUnknown ErrorClass = iota
	ErrorClassTimeout
	ErrorClassConnection
	ErrorClassMemory
	ErrorClassRateLimit
	ErrorClassAuth
)

// String returns the string representation of the error class.
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTimeout:
		return "timeout"
	case ErrorClassConnection:
		return "connection"
	case ErrorClassMemory:
		return "memory"
	case ErrorClassRateLimit:
		return "rateLimit"
	case ErrorClassAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Classify maps a call error to an ErrorClass. Classification feeds the
// predictive model only; the original error always reaches the caller
// unchanged.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorClassTimeout
		}
		return ErrorClassConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorClassConnection
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.DeadlineExceeded:
			return ErrorClassTimeout
		case codes.Unavailable, codes.Aborted:
			return ErrorClassConnection
		case codes.ResourceExhausted:
			return ErrorClassRateLimit
		case codes.Unauthenticated, codes.PermissionDenied:
			return ErrorClassAuth
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return ErrorClassTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "refused"):
		return ErrorClassConnection
	case strings.Contains(msg, "out of memory") || strings.Contains(msg, "memory"):
		return ErrorClassMemory
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return ErrorClassRateLimit
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "auth"):
		return ErrorClassAuth
	default:
		return ErrorClassUnknown
	}
}

// ResourceSnapshot captures resource pressure at call time, each value
// normalized to [0,1].
type ResourceSnapshot struct {
	CPU         float64
	Memory      float64
	Connections float64
}

// pressure blends the snapshot into a single [0,1] figure.
func (r ResourceSnapshot) pressure() float64 {
	return clamp01(0.4*r.CPU + 0.4*r.Memory + 0.2*r.Connections)
}

// MetricSample is one completed call observed by the statistics engine.
type MetricSample struct {
	Timestamp    time.Time
	ResponseTime time.Duration
	Success      bool
	Class        ErrorClass
	Resources    *ResourceSnapshot
}

// movingAveragePoint is one recomputation of the rolling averages,
// taken after each recorded sample.
type movingAveragePoint struct {
	at               time.Time
	responseTimeMs   float64
	errorRate        float64
	resourcePressure float64
}

// movingAverageWindow is the number of trailing samples each rolling
// average covers.
const movingAverageWindow = 10

// maxAveragePoints bounds the moving-average series retained for trend
// and anomaly analysis.
const maxAveragePoints = 120

// sampleHistory owns one breaker's metric samples and derived
// moving-average series. Not synchronized; the predictive breaker's
// mutex guards every method.
type sampleHistory struct {
	window   time.Duration
	samples  []MetricSample
	averages []movingAveragePoint
}

func newSampleHistory(window time.Duration) *sampleHistory {
	return &sampleHistory{window: window}
}

// add appends a sample, evicts anything older than the retention
// window, and extends the moving-average series.
func (h *sampleHistory) add(s MetricSample) {
	h.evict(s.Timestamp)
	h.samples = append(h.samples, s)

	h.averages = append(h.averages, h.average(s.Timestamp))
	if len(h.averages) > maxAveragePoints {
		h.averages = h.averages[len(h.averages)-maxAveragePoints:]
	}
}

// evict drops samples that fell out of the retention window, oldest first.
func (h *sampleHistory) evict(now time.Time) {
	cutoff := now.Add(-h.window)
	i := 0
	for i < len(h.samples) && !h.samples[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		h.samples = append(h.samples[:0], h.samples[i:]...)
	}
}

func (h *sampleHistory) len() int { return len(h.samples) }

// last returns the most recent n samples (fewer if the history is shorter).
func (h *sampleHistory) last(n int) []MetricSample {
	if n >= len(h.samples) {
		return h.samples
	}
	return h.samples[len(h.samples)-n:]
}

// average computes the rolling averages over the trailing
// movingAverageWindow samples.
func (h *sampleHistory) average(at time.Time) movingAveragePoint {
	recent := h.last(movingAverageWindow)

	p := movingAveragePoint{at: at}
	if len(recent) == 0 {
		return p
	}

	var rtSum, pressureSum float64
	var failures, snapshots int
	for _, s := range recent {
		rtSum += float64(s.ResponseTime) / float64(time.Millisecond)
		if !s.Success {
			failures++
		}
		if s.Resources != nil {
			pressureSum += s.Resources.pressure()
			snapshots++
		}
	}

	p.responseTimeMs = rtSum / float64(len(recent))
	p.errorRate = float64(failures) / float64(len(recent))
	if snapshots > 0 {
		p.resourcePressure = pressureSum / float64(snapshots)
	}
	return p
}

// lastAverages returns the most recent n moving-average points.
func (h *sampleHistory) lastAverages(n int) []movingAveragePoint {
	if n >= len(h.averages) {
		return h.averages
	}
	return h.averages[len(h.averages)-n:]
}

func (h *sampleHistory) reset() {
	h.samples = h.samples[:0]
	h.averages = h.averages[:0]
}

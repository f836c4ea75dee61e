package breaker

import "time"

// slidingWindow tracks request and failure timestamps inside a rolling
// time window. It is not synchronized; the owning breaker's mutex guards
// every method.
type slidingWindow struct {
	size     time.Duration
	requests []time.Time
	failures []time.Time
}

func newSlidingWindow(size time.Duration) *slidingWindow {
	return &slidingWindow{size: size}
}

// recordRequest appends an admission timestamp.
func (w *slidingWindow) recordRequest(now time.Time) {
	w.prune(now)
	w.requests = append(w.requests, now)
}

// recordFailure appends a failure timestamp.
func (w *slidingWindow) recordFailure(now time.Time) {
	w.failures = append(w.failures, now)
}

// counts returns the number of requests and failures still inside the window.
func (w *slidingWindow) counts(now time.Time) (requests, failures int) {
	w.prune(now)
	return len(w.requests), len(w.failures)
}

// prune drops timestamps that fell out of the window, oldest first.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	w.requests = dropBefore(w.requests, cutoff)
	w.failures = dropBefore(w.failures, cutoff)
}

func (w *slidingWindow) reset() {
	w.requests = w.requests[:0]
	w.failures = w.failures[:0]
}

func dropBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

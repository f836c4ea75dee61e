package breaker

import "time"

// Clock abstracts time lookups so tests can control the probe timeline.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

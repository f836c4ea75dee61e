package breaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds construction-time configuration for a breaker.
// Zero-valued numeric fields are replaced by defaults before validation;
// a value that is still invalid after that fails New.
type Config struct {
	// Timeout is the open-state probe delay: how long the breaker stays
	// open before the next admission attempt is allowed through as a
	// half-open trial.
	Timeout time.Duration

	// FailureThreshold is the number of failures inside the monitoring
	// window required to open the breaker.
	FailureThreshold int

	// SuccessThreshold is the number of successes required in half-open
	// state to close the breaker.
	SuccessThreshold int

	// MonitoringWindow is the sliding window over which request volume
	// and failures are counted.
	MonitoringWindow time.Duration

	// VolumeThreshold is the minimum number of requests inside the
	// monitoring window before the breaker is allowed to open.
	VolumeThreshold int

	// OnStateChange is called whenever the breaker changes state.
	// It runs under the breaker lock and must not block.
	OnStateChange func(name string, from, to State)

	// OnOutcome is called after every admission with the call outcome,
	// including rejections. It runs under the breaker lock and must not
	// block.
	OnOutcome func(name string, o Outcome)

	// Clock supplies timestamps. Nil means the system clock.
	Clock Clock
}

// DefaultConfig returns the defaults applied to unset Config fields.
func DefaultConfig() Config {
	return Config{
		Timeout:          60 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		MonitoringWindow: 60 * time.Second,
		VolumeThreshold:  10,
	}
}

// Validate checks the config after defaults have been applied.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.SuccessThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.MonitoringWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.VolumeThreshold, validation.Required, validation.Min(1)),
	)
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.MonitoringWindow == 0 {
		c.MonitoringWindow = def.MonitoringWindow
	}
	if c.VolumeThreshold == 0 {
		c.VolumeThreshold = def.VolumeThreshold
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}

	return c
}

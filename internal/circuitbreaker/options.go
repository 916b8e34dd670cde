package circuitbreaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Options configures a circuit breaker instance.
type Options struct {
	// FailureThreshold trips the circuit after this many accumulated
	// failures in the closed state.
	FailureThreshold int64

	// SuccessThreshold closes the circuit after this many consecutive
	// successful probes in the half-open state.
	SuccessThreshold int64

	// Timeout is how long the circuit stays open before the next call is
	// allowed through as a half-open probe.
	Timeout time.Duration

	// FailureRateThreshold is the failure percentage (0-100] that trips
	// the circuit once MinimumThroughput requests have been seen.
	FailureRateThreshold float64

	// MinimumThroughput is the request count below which failure rates
	// are not meaningful and are ignored.
	MinimumThroughput int64

	// SamplingPeriod bounds the recent-outcome window used for the
	// windowed failure rate.
	SamplingPeriod time.Duration

	// MonitorInterval is how often the background monitor purges expired
	// window entries and applies auto-reset.
	MonitorInterval time.Duration

	// MonitorTimeouts counts timeouts and cancellations as failures.
	MonitorTimeouts bool

	// EnableAutoReset zeroes the failure count in the closed state once
	// more than Timeout has elapsed since the last failure.
	EnableAutoReset bool

	// MonitoredErrors restricts which errors count as failures. Empty
	// means every error is monitored. Matching uses errors.Is.
	MonitoredErrors []error

	// IgnoredErrors never count as failures and take precedence over
	// MonitoredErrors.
	IgnoredErrors []error
}

// DefaultOptions returns the standard circuit breaker tuning.
func DefaultOptions() Options {
	return Options{
		FailureThreshold:     5,
		SuccessThreshold:     3,
		Timeout:              30 * time.Second,
		FailureRateThreshold: 50,
		MinimumThroughput:    10,
		SamplingPeriod:       60 * time.Second,
		MonitorInterval:      10 * time.Second,
		MonitorTimeouts:      true,
		EnableAutoReset:      true,
	}
}

// Validate checks option consistency.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.FailureThreshold, validation.Required, validation.Min(int64(1))),
		validation.Field(&o.SuccessThreshold, validation.Required, validation.Min(int64(1))),
		validation.Field(&o.Timeout, validation.Required, validation.By(positiveDuration)),
		validation.Field(&o.FailureRateThreshold, validation.Required, validation.Min(float64(0)), validation.Max(float64(100))),
		validation.Field(&o.MinimumThroughput, validation.Required, validation.Min(int64(1))),
		validation.Field(&o.SamplingPeriod, validation.Required, validation.By(positiveDuration)),
		validation.Field(&o.MonitorInterval, validation.Required, validation.By(positiveDuration)),
	)
}

func positiveDuration(value interface{}) error {
	d, ok := value.(time.Duration)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a duration")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be a positive duration")
	}

	return nil
}

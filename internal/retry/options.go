package retry

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DelayStrategy selects the backoff curve between attempts.
type DelayStrategy string

const (
	DelayFixed             DelayStrategy = "fixed"
	DelayLinear            DelayStrategy = "linear"
	DelayExponential       DelayStrategy = "exponential"
	DelayExponentialJitter DelayStrategy = "exponential-jitter"
	DelayCustom            DelayStrategy = "custom"
)

// Options configures a retry policy.
type Options struct {
	// MaxRetries is the number of retries after the initial attempt, so
	// MaxRetries+1 attempts happen in total.
	MaxRetries int

	// BaseDelay seeds the backoff curve.
	BaseDelay time.Duration

	// MaxDelay clamps every computed delay.
	MaxDelay time.Duration

	// BackoffMultiplier grows exponential delays per attempt.
	BackoffMultiplier float64

	// Strategy selects the backoff curve.
	Strategy DelayStrategy

	// CustomDelay supplies the delay for DelayCustom, keyed by the
	// 1-based retry attempt number.
	CustomDelay func(attempt int) time.Duration

	// EnableJitter applies an extra ±10% randomization to strategies
	// without their own jitter.
	EnableJitter bool

	// TotalTimeout bounds the wall-clock time across all attempts,
	// measured from the first attempt.
	TotalTimeout time.Duration

	// RetryableErrors forces matching errors to be retried.
	RetryableErrors []error

	// NonRetryableErrors stops retrying on matching errors. Takes
	// precedence over RetryableErrors.
	NonRetryableErrors []error

	// ShouldRetry classifies errors not covered by the lists above.
	ShouldRetry func(err error) bool

	// OnRetrying fires before each backoff wait with the failed attempt's
	// error, the 1-based retry number, and the computed delay.
	OnRetrying func(err error, attempt int, delay time.Duration)

	// OnRetrySuccess fires when the operation eventually succeeds after
	// at least one retry, with the total attempts used.
	OnRetrySuccess func(attempts int)

	// OnRetryFailed fires when the policy gives up, with the final error
	// and total attempts used.
	OnRetryFailed func(err error, attempts int)
}

// DefaultOptions returns the standard retry tuning.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		Strategy:          DelayExponentialJitter,
		TotalTimeout:      2 * time.Minute,
	}
}

// Validate checks option consistency.
func (o Options) Validate() error {
	if o.Strategy == DelayCustom && o.CustomDelay == nil {
		return validation.NewError("validation_missing_custom_delay",
			"custom strategy requires a CustomDelay function")
	}

	return validation.ValidateStruct(&o,
		validation.Field(&o.MaxRetries, validation.Min(0)),
		validation.Field(&o.BaseDelay, validation.Required, validation.By(positiveDuration)),
		validation.Field(&o.MaxDelay, validation.Required, validation.By(positiveDuration)),
		validation.Field(&o.BackoffMultiplier, validation.Required, validation.Min(float64(1))),
		validation.Field(&o.Strategy, validation.Required, validation.In(
			DelayFixed, DelayLinear, DelayExponential, DelayExponentialJitter, DelayCustom,
		)),
		validation.Field(&o.TotalTimeout, validation.Required, validation.By(positiveDuration)),
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

package failover

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SelectionStrategy picks the replacement endpoint during failover.
type SelectionStrategy string

const (
	SelectPriority    SelectionStrategy = "priority"     // Lowest priority number wins
	SelectWeight      SelectionStrategy = "weight"       // Weighted random
	SelectRoundRobin  SelectionStrategy = "round-robin"  // Next after current in ID order
	SelectRandom      SelectionStrategy = "random"       // Uniform random
	SelectHealthScore SelectionStrategy = "health-score" // Highest health score wins
)

// FailurePolicy decides what happens when no replacement is available.
type FailurePolicy string

const (
	// FailFast surfaces NoEndpointError to the caller.
	FailFast FailurePolicy = "failfast"
	// KeepTrying hands back the stale current endpoint instead of failing.
	KeepTrying FailurePolicy = "keeptrying"
)

// Options configures the failover manager.
type Options struct {
	// Strategy selects the replacement endpoint during failover.
	Strategy SelectionStrategy

	// FailurePolicy applies when failover finds no candidate.
	FailurePolicy FailurePolicy

	// CooldownPeriod excludes endpoints that failed recently from
	// re-election, and makes a recently failed active endpoint stale.
	CooldownPeriod time.Duration

	// MaxConsecutiveFailures forces an endpoint unavailable once its
	// health checks have failed this many times in a row.
	MaxConsecutiveFailures int

	// HealthCheckInterval is the period between health check cycles.
	HealthCheckInterval time.Duration

	// HealthCheckTimeout bounds each individual endpoint probe.
	HealthCheckTimeout time.Duration
}

// DefaultOptions returns the standard failover tuning.
func DefaultOptions() Options {
	return Options{
		Strategy:               SelectPriority,
		FailurePolicy:          FailFast,
		CooldownPeriod:         30 * time.Second,
		MaxConsecutiveFailures: 3,
		HealthCheckInterval:    15 * time.Second,
		HealthCheckTimeout:     5 * time.Second,
	}
}

// Validate checks option consistency.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Strategy, validation.Required, validation.In(
			SelectPriority, SelectWeight, SelectRoundRobin, SelectRandom, SelectHealthScore,
		)),
		validation.Field(&o.FailurePolicy, validation.Required, validation.In(FailFast, KeepTrying)),
		validation.Field(&o.CooldownPeriod, validation.Required, validation.By(positiveDuration)),
		validation.Field(&o.MaxConsecutiveFailures, validation.Required, validation.Min(1)),
		validation.Field(&o.HealthCheckInterval, validation.Required, validation.By(positiveDuration)),
		validation.Field(&o.HealthCheckTimeout, validation.Required, validation.By(positiveDuration)),
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

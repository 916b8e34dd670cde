package config

import (
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/rpc-resilience/internal/failover"
	"github.com/angeloszaimis/rpc-resilience/internal/loadbalancer"
	"github.com/angeloszaimis/rpc-resilience/internal/retry"
)

// CircuitBreakerOptions converts the validated config section into component
// options. Call after Validate: duration strings are assumed parseable.
func (c *Config) CircuitBreakerOptions() (circuitbreaker.Options, error) {
	timeout, err := time.ParseDuration(c.CircuitBreaker.Timeout)
	if err != nil {
		return circuitbreaker.Options{}, err
	}
	sampling, err := time.ParseDuration(c.CircuitBreaker.SamplingPeriod)
	if err != nil {
		return circuitbreaker.Options{}, err
	}
	monitor, err := time.ParseDuration(c.CircuitBreaker.MonitorInterval)
	if err != nil {
		return circuitbreaker.Options{}, err
	}

	return circuitbreaker.Options{
		FailureThreshold:     c.CircuitBreaker.FailureThreshold,
		SuccessThreshold:     c.CircuitBreaker.SuccessThreshold,
		Timeout:              timeout,
		FailureRateThreshold: c.CircuitBreaker.FailureRateThreshold,
		MinimumThroughput:    c.CircuitBreaker.MinimumThroughput,
		SamplingPeriod:       sampling,
		MonitorInterval:      monitor,
		MonitorTimeouts:      c.CircuitBreaker.MonitorTimeouts,
		EnableAutoReset:      c.CircuitBreaker.EnableAutoReset,
	}, nil
}

// RetryOptions converts the validated retry section into component options.
func (c *Config) RetryOptions() (retry.Options, error) {
	baseDelay, err := time.ParseDuration(c.Retry.BaseDelay)
	if err != nil {
		return retry.Options{}, err
	}
	maxDelay, err := time.ParseDuration(c.Retry.MaxDelay)
	if err != nil {
		return retry.Options{}, err
	}
	totalTimeout, err := time.ParseDuration(c.Retry.TotalTimeout)
	if err != nil {
		return retry.Options{}, err
	}

	return retry.Options{
		MaxRetries:        c.Retry.MaxRetries,
		BaseDelay:         baseDelay,
		MaxDelay:          maxDelay,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
		Strategy:          retry.DelayStrategy(c.Retry.Strategy),
		EnableJitter:      c.Retry.EnableJitter,
		TotalTimeout:      totalTimeout,
	}, nil
}

// FailoverOptions converts the validated failover section into component
// options.
func (c *Config) FailoverOptions() (failover.Options, error) {
	cooldown, err := time.ParseDuration(c.Failover.CooldownPeriod)
	if err != nil {
		return failover.Options{}, err
	}
	interval, err := time.ParseDuration(c.Failover.HealthCheckInterval)
	if err != nil {
		return failover.Options{}, err
	}
	timeout, err := time.ParseDuration(c.Failover.HealthCheckTimeout)
	if err != nil {
		return failover.Options{}, err
	}

	return failover.Options{
		Strategy:               failover.SelectionStrategy(c.Failover.Strategy),
		FailurePolicy:          failover.FailurePolicy(c.Failover.FailurePolicy),
		CooldownPeriod:         cooldown,
		MaxConsecutiveFailures: c.Failover.MaxConsecutiveFailures,
		HealthCheckInterval:    interval,
		HealthCheckTimeout:     timeout,
	}, nil
}

// LoadBalancerOptions converts the validated load balancing section.
func (c *Config) LoadBalancerOptions() loadbalancer.Options {
	return loadbalancer.Options{
		AdaptiveWeights: c.LoadBalancing.AdaptiveWeights,
	}
}

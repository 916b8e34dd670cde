package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/events"
	"github.com/angeloszaimis/rpc-resilience/internal/rpcerror"
)

// Operation is the call being retried. Each attempt receives the caller's
// context so in-flight work can be cancelled.
type Operation func(ctx context.Context) (any, error)

// Stats is a snapshot of the policy's lifetime counters.
type Stats struct {
	TotalAttempts        int64
	TotalRetries         int64
	SuccessfulOperations int64
	FailedOperations     int64
}

// Policy retries operations according to its options. A policy holds no
// per-call state, so one instance serves any number of concurrent callers.
type Policy struct {
	opts   Options
	stream *events.Stream
	logger *slog.Logger

	totalAttempts        atomic.Int64
	totalRetries         atomic.Int64
	successfulOperations atomic.Int64
	failedOperations     atomic.Int64
}

// NewPolicy creates a retry policy. stream may be nil.
func NewPolicy(opts Options, stream *events.Stream, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}

	return &Policy{
		opts:   opts,
		stream: stream,
		logger: logger,
	}
}

// Execute runs op until it succeeds, a non-retryable error occurs, the
// attempt budget is spent, or the total timeout elapses. Exhaustion
// surfaces as *rpcerror.RetryExhaustedError wrapping every attempt's error;
// non-retryable errors propagate unchanged after a single attempt.
func (p *Policy) Execute(ctx context.Context, op Operation) (any, error) {
	start := time.Now()
	var attemptErrs []error

	for attempt := 0; ; attempt++ {
		p.totalAttempts.Add(1)
		if attempt > 0 {
			p.totalRetries.Add(1)
		}

		result, err := op(ctx)
		if err == nil {
			p.successfulOperations.Add(1)
			if attempt > 0 && p.opts.OnRetrySuccess != nil {
				p.opts.OnRetrySuccess(attempt + 1)
			}
			return result, nil
		}

		attemptErrs = append(attemptErrs, err)

		if !p.shouldRetry(err) {
			p.failedOperations.Add(1)
			if p.opts.OnRetryFailed != nil {
				p.opts.OnRetryFailed(err, attempt+1)
			}
			return nil, err
		}

		if attempt >= p.opts.MaxRetries || time.Since(start) >= p.opts.TotalTimeout {
			p.failedOperations.Add(1)
			exhausted := &rpcerror.RetryExhaustedError{
				Attempts: attempt + 1,
				Errs:     attemptErrs,
			}
			if p.opts.OnRetryFailed != nil {
				p.opts.OnRetryFailed(exhausted, attempt+1)
			}
			return nil, exhausted
		}

		delay := p.DelayFor(attempt + 1)

		if p.opts.OnRetrying != nil {
			p.opts.OnRetrying(err, attempt+1, delay)
		}
		p.publishAttempt(err, attempt+1, delay)

		if waitErr := sleep(ctx, delay); waitErr != nil {
			p.failedOperations.Add(1)
			exhausted := &rpcerror.RetryExhaustedError{
				Attempts: attempt + 1,
				Errs:     append(attemptErrs, waitErr),
			}
			if p.opts.OnRetryFailed != nil {
				p.opts.OnRetryFailed(exhausted, attempt+1)
			}
			return nil, exhausted
		}
	}
}

// DelayFor computes the backoff before the given 1-based retry attempt.
// Every strategy's result is clamped to MaxDelay; EnableJitter adds ±10%
// to strategies without built-in jitter.
func (p *Policy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration

	switch p.opts.Strategy {
	case DelayFixed:
		delay = p.opts.BaseDelay
	case DelayLinear:
		delay = p.opts.BaseDelay * time.Duration(attempt)
	case DelayExponential:
		delay = p.exponential(attempt)
	case DelayExponentialJitter:
		// Multiplicative jitter in [0.9, 1.1]
		delay = time.Duration(float64(p.exponential(attempt)) * (0.9 + rand.Float64()*0.2))
	case DelayCustom:
		delay = p.opts.CustomDelay(attempt)
	default:
		delay = p.opts.BaseDelay
	}

	if delay > p.opts.MaxDelay {
		delay = p.opts.MaxDelay
	}

	if p.opts.EnableJitter && p.opts.Strategy != DelayExponentialJitter {
		delay = time.Duration(float64(delay) * (0.9 + rand.Float64()*0.2))
		if delay > p.opts.MaxDelay {
			delay = p.opts.MaxDelay
		}
	}

	if delay < 0 {
		delay = 0
	}

	return delay
}

func (p *Policy) exponential(attempt int) time.Duration {
	return time.Duration(float64(p.opts.BaseDelay) * math.Pow(p.opts.BackoffMultiplier, float64(attempt-1)))
}

// shouldRetry classifies an attempt error. Order: explicit non-retryable
// list, explicit retryable list, the caller's predicate, then the default
// of retrying everything except the permanent-failure sentinels and
// open-circuit rejections.
func (p *Policy) shouldRetry(err error) bool {
	for _, nonRetryable := range p.opts.NonRetryableErrors {
		if errors.Is(err, nonRetryable) {
			return false
		}
	}

	for _, retryable := range p.opts.RetryableErrors {
		if errors.Is(err, retryable) {
			return true
		}
	}

	if p.opts.ShouldRetry != nil {
		return p.opts.ShouldRetry(err)
	}

	return !rpcerror.IsNonRetryable(err)
}

// Stats returns the lifetime counters.
func (p *Policy) Stats() Stats {
	return Stats{
		TotalAttempts:        p.totalAttempts.Load(),
		TotalRetries:         p.totalRetries.Load(),
		SuccessfulOperations: p.successfulOperations.Load(),
		FailedOperations:     p.failedOperations.Load(),
	}
}

func (p *Policy) publishAttempt(err error, attempt int, delay time.Duration) {
	if p.stream == nil {
		return
	}

	p.stream.Publish(events.Record{
		Kind:     events.KindRetryAttempt,
		Attempt:  attempt,
		Duration: delay,
		Error:    err.Error(),
	})
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

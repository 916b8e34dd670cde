package rpcerror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Sentinel errors that callers can wrap to mark a failure as permanently
// non-retryable. The retry policy refuses to retry anything matching these.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
	ErrUnauthorized    = errors.New("unauthorized")
)

// OpenCircuitError is returned when a circuit breaker rejects a call without
// executing it. NextAttempt tells the caller when a probe will be allowed.
type OpenCircuitError struct {
	Breaker      string
	FailureCount int64
	NextAttempt  time.Time
}

func (e *OpenCircuitError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, next attempt at %s (failures: %d)",
		e.Breaker, e.NextAttempt.Format(time.RFC3339), e.FailureCount)
}

// NoEndpointError is returned when the endpoint pool is empty or every
// endpoint has been filtered out as unavailable.
type NoEndpointError struct {
	Reason string
}

func (e *NoEndpointError) Error() string {
	if e.Reason == "" {
		return "no available endpoint"
	}
	return "no available endpoint: " + e.Reason
}

// RetryExhaustedError wraps the errors from every attempt once a retry policy
// gives up. Unwrap exposes the joined attempt errors to errors.Is/As.
type RetryExhaustedError struct {
	Attempts int
	Errs     []error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.last())
}

func (e *RetryExhaustedError) Unwrap() error {
	return errors.Join(e.Errs...)
}

func (e *RetryExhaustedError) last() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[len(e.Errs)-1]
}

// IsTimeout reports whether err looks like a timeout or cancellation:
// context deadline/cancel, os timeout, or a net.Error with Timeout set.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNonRetryable reports whether err matches the default non-retryable set:
// the sentinel errors above plus open-circuit rejections, which cannot
// succeed before the breaker timeout elapses anyway.
func IsNonRetryable(err error) bool {
	if errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotSupported) ||
		errors.Is(err, ErrUnauthorized) {
		return true
	}
	var open *OpenCircuitError
	return errors.As(err, &open)
}

package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/events"
	"github.com/angeloszaimis/rpc-resilience/internal/rpcerror"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls
	StateHalfOpen              // Probing with trial calls
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Operation is a protected call. The breaker passes its context through so
// the operation can honor cancellation.
type Operation func(ctx context.Context) (any, error)

type outcome struct {
	at       time.Time
	success  bool
	duration time.Duration
}

// Stats is a point-in-time snapshot of breaker counters.
type Stats struct {
	State              State
	FailureCount       int64
	SuccessCount       int64
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	RejectedRequests   int64
	LastFailure        time.Time
	StateChanged       time.Time
}

// CircuitBreaker guards a single protected resource. One instance lives for
// the process lifetime; Close stops its background monitor.
type CircuitBreaker struct {
	name   string
	opts   Options
	stream *events.Stream
	logger *slog.Logger

	mutex        sync.Mutex
	state        State
	failureCount int64
	successCount int64
	lastFailure  time.Time
	stateChanged time.Time
	window       []outcome

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	rejectedRequests   int64

	done      chan struct{}
	closeOnce sync.Once
}

// NewCircuitBreaker creates a closed breaker and starts its background
// monitor. stream may be nil when nobody subscribes to state changes.
func NewCircuitBreaker(name string, opts Options, stream *events.Stream, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}

	cb := &CircuitBreaker{
		name:         name,
		opts:         opts,
		stream:       stream,
		logger:       logger,
		state:        StateClosed,
		stateChanged: time.Now(),
		done:         make(chan struct{}),
	}

	go cb.monitor()
	return cb
}

// Name returns the protected resource name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs op under circuit protection. When the circuit is open and the
// timeout has not elapsed it returns *rpcerror.OpenCircuitError without
// invoking op; otherwise op runs and its error, if monitored, is recorded
// against the circuit before being propagated unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (any, error) {
	if err := cb.beforeCall(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := op(ctx)
	duration := time.Since(start)

	if err != nil {
		if cb.isMonitored(err) {
			cb.recordFailure(duration, err)
		}
		return nil, err
	}

	cb.recordSuccess(duration)
	return result, nil
}

// beforeCall decides whether the call may proceed, applying the lazy
// Open -> Half-Open transition once the timeout has elapsed.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	nextAttempt := cb.stateChanged.Add(cb.opts.Timeout)
	if time.Now().Before(nextAttempt) {
		cb.rejectedRequests++
		return &rpcerror.OpenCircuitError{
			Breaker:      cb.name,
			FailureCount: cb.failureCount,
			NextAttempt:  nextAttempt,
		}
	}

	cb.transition(StateHalfOpen)
	cb.failureCount = 0
	cb.successCount = 0
	return nil
}

func (cb *CircuitBreaker) recordSuccess(duration time.Duration) {
	cb.mutex.Lock()

	cb.totalRequests++
	cb.successfulRequests++
	cb.appendOutcome(outcome{at: time.Now(), success: true, duration: duration})

	switch cb.state {
	case StateClosed:
		// Self-healing: successes slowly work accumulated failures off
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.opts.SuccessThreshold {
			cb.transition(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
	cb.mutex.Unlock()

	cb.publish(events.Record{
		Kind:     events.KindOperationSucceeded,
		Source:   cb.name,
		Duration: duration,
		Success:  true,
	})
}

func (cb *CircuitBreaker) recordFailure(duration time.Duration, err error) {
	now := time.Now()

	cb.mutex.Lock()

	cb.totalRequests++
	cb.failedRequests++
	cb.lastFailure = now
	cb.appendOutcome(outcome{at: now, success: false, duration: duration})

	tripped := false
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.shouldTrip(now) {
			cb.transition(StateOpen)
			tripped = true
		}
	case StateHalfOpen:
		// One failed probe sends the circuit straight back to open
		cb.transition(StateOpen)
		cb.failureCount = 0
		cb.successCount = 0
		tripped = true
	}

	failures := cb.failureCount
	cb.mutex.Unlock()

	cb.publish(events.Record{
		Kind:     events.KindOperationFailed,
		Source:   cb.name,
		Duration: duration,
		Error:    err.Error(),
	})

	if tripped {
		cb.publish(events.Record{
			Kind:   events.KindCircuitTripped,
			Source: cb.name,
			Detail: err.Error(),
		})
		cb.logger.Warn("circuit breaker tripped",
			slog.String("breaker", cb.name),
			slog.Int64("failures", failures),
			slog.String("error", err.Error()))
	}
}

// shouldTrip is called with the mutex held in the closed state.
// The circuit opens when any of three conditions is met: the accumulated
// failure count, the lifetime failure rate, or the windowed failure rate.
func (cb *CircuitBreaker) shouldTrip(now time.Time) bool {
	if cb.failureCount >= cb.opts.FailureThreshold {
		return true
	}

	if cb.totalRequests >= cb.opts.MinimumThroughput {
		rate := float64(cb.failedRequests) / float64(cb.totalRequests) * 100
		if rate >= cb.opts.FailureRateThreshold {
			return true
		}
	}

	cb.purgeWindow(now)
	if int64(len(cb.window)) >= cb.opts.MinimumThroughput {
		failed := 0
		for _, o := range cb.window {
			if !o.success {
				failed++
			}
		}
		rate := float64(failed) / float64(len(cb.window)) * 100
		if rate >= cb.opts.FailureRateThreshold {
			return true
		}
	}

	return false
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	cb.stateChanged = time.Now()

	cb.logger.Info("circuit breaker state changed",
		slog.String("breaker", cb.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	// Publishing under the lock is safe: the stream never blocks.
	cb.publish(events.Record{
		Kind:     events.KindCircuitStateChanged,
		Source:   cb.name,
		OldState: from.String(),
		NewState: to.String(),
	})
}

// appendOutcome must be called with the mutex held.
func (cb *CircuitBreaker) appendOutcome(o outcome) {
	cb.window = append(cb.window, o)
	cb.purgeWindow(o.at)
}

// purgeWindow drops entries older than the sampling period.
// Must be called with the mutex held.
func (cb *CircuitBreaker) purgeWindow(now time.Time) {
	cutoff := now.Add(-cb.opts.SamplingPeriod)

	firstValid := 0
	for firstValid < len(cb.window) && cb.window[firstValid].at.Before(cutoff) {
		firstValid++
	}

	if firstValid > 0 {
		cb.window = append(cb.window[:0], cb.window[firstValid:]...)
	}
}

// isMonitored decides whether an error counts toward circuit state.
// The ignore list always wins; timeouts follow MonitorTimeouts; an empty
// monitored list means every remaining error is monitored.
func (cb *CircuitBreaker) isMonitored(err error) bool {
	for _, ignored := range cb.opts.IgnoredErrors {
		if errors.Is(err, ignored) {
			return false
		}
	}

	if rpcerror.IsTimeout(err) {
		return cb.opts.MonitorTimeouts
	}

	if len(cb.opts.MonitoredErrors) == 0 {
		return true
	}

	for _, monitored := range cb.opts.MonitoredErrors {
		if errors.Is(err, monitored) {
			return true
		}
	}

	return false
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Stats{
		State:              cb.state,
		FailureCount:       cb.failureCount,
		SuccessCount:       cb.successCount,
		TotalRequests:      cb.totalRequests,
		SuccessfulRequests: cb.successfulRequests,
		FailedRequests:     cb.failedRequests,
		RejectedRequests:   cb.rejectedRequests,
		LastFailure:        cb.lastFailure,
		StateChanged:       cb.stateChanged,
	}
}

// Trip forces the circuit open.
func (cb *CircuitBreaker) Trip() {
	cb.mutex.Lock()
	cb.transition(StateOpen)
	cb.mutex.Unlock()
}

// Reset forces the circuit closed and clears all counters and history.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	cb.transition(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.totalRequests = 0
	cb.successfulRequests = 0
	cb.failedRequests = 0
	cb.rejectedRequests = 0
	cb.lastFailure = time.Time{}
	cb.window = cb.window[:0]
	cb.mutex.Unlock()
}

// Close stops the background monitor. The breaker remains usable but the
// sample window is no longer purged between calls.
func (cb *CircuitBreaker) Close() {
	cb.closeOnce.Do(func() {
		close(cb.done)
	})
}

// monitor periodically purges expired window entries and, with auto-reset
// enabled, forgives stale failures in the closed state.
func (cb *CircuitBreaker) monitor() {
	ticker := time.NewTicker(cb.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cb.done:
			return
		case now := <-ticker.C:
			cb.mutex.Lock()
			cb.purgeWindow(now)

			if cb.opts.EnableAutoReset &&
				cb.state == StateClosed &&
				cb.failureCount > 0 &&
				!cb.lastFailure.IsZero() &&
				now.Sub(cb.lastFailure) > cb.opts.Timeout {
				cb.failureCount = 0
			}
			cb.mutex.Unlock()
		}
	}
}

func (cb *CircuitBreaker) publish(r events.Record) {
	if cb.stream != nil {
		cb.stream.Publish(r)
	}
}

package endpoint

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status describes whether an endpoint may receive traffic.
type Status int

const (
	StatusAvailable   Status = iota // Accepting traffic
	StatusUnavailable               // Failed or marked down
	StatusMaintenance               // Administratively drained, never auto-exited
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "AVAILABLE"
	case StatusUnavailable:
		return "UNAVAILABLE"
	case StatusMaintenance:
		return "MAINTENANCE"
	default:
		return "UNKNOWN"
	}
}

// Endpoint represents a single service instance. All mutable fields are
// guarded by the embedded mutex; the identity fields are immutable.
type Endpoint struct {
	id      string
	address string
	port    int

	mutex         sync.Mutex
	priority      int
	weight        int
	baseWeight    int
	status        Status
	lastSuccess   time.Time
	lastFailure   time.Time
	failureReason string

	health  healthRecord
	metrics *Metrics
}

type healthRecord struct {
	healthy             bool
	consecutiveFailures int
	lastCheck           time.Time
}

// New creates an available endpoint with a generated ID, weight 1 and
// priority 1.
func New(address string, port int) *Endpoint {
	return NewWithID(uuid.NewString(), address, port)
}

// NewWithID creates an endpoint with a caller-supplied identity. Used when
// endpoints come from configuration with stable IDs.
func NewWithID(id, address string, port int) *Endpoint {
	return &Endpoint{
		id:         id,
		address:    address,
		port:       port,
		priority:   1,
		weight:     1,
		baseWeight: 1,
		status:     StatusAvailable,
		health:     healthRecord{healthy: true},
		metrics:    NewMetrics(),
	}
}

// ID returns the unique endpoint identifier.
func (e *Endpoint) ID() string { return e.id }

// Address returns the endpoint host.
func (e *Endpoint) Address() string { return e.address }

// Port returns the endpoint port.
func (e *Endpoint) Port() int { return e.port }

// HostPort returns the endpoint as a dialable "host:port" string.
func (e *Endpoint) HostPort() string {
	return net.JoinHostPort(e.address, strconv.Itoa(e.port))
}

// Metrics returns the per-endpoint request metrics.
func (e *Endpoint) Metrics() *Metrics { return e.metrics }

// Priority returns the endpoint priority. Lower values are preferred.
func (e *Endpoint) Priority() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.priority
}

// SetPriority updates the endpoint priority.
func (e *Endpoint) SetPriority(p int) {
	e.mutex.Lock()
	e.priority = p
	e.mutex.Unlock()
}

// Weight returns the current effective selection weight.
func (e *Endpoint) Weight() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.weight
}

// BaseWeight returns the configured weight before adaptive adjustment.
func (e *Endpoint) BaseWeight() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.baseWeight
}

// SetWeight sets both the configured and effective weight.
func (e *Endpoint) SetWeight(w int) {
	e.mutex.Lock()
	e.weight = w
	e.baseWeight = w
	e.mutex.Unlock()
}

// SetEffectiveWeight updates only the effective weight, preserving the
// configured base. Used by adaptive weighting.
func (e *Endpoint) SetEffectiveWeight(w int) {
	e.mutex.Lock()
	e.weight = w
	e.mutex.Unlock()
}

// Status returns the current endpoint status.
func (e *Endpoint) Status() Status {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.status
}

// SetStatus updates the endpoint status.
// Returns true if the status changed, false if it was already in that state.
func (e *Endpoint) SetStatus(s Status) (changed bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.status == s {
		return false
	}

	e.status = s
	return true
}

// IsAvailable reports whether the endpoint may receive traffic.
func (e *Endpoint) IsAvailable() bool {
	return e.Status() == StatusAvailable
}

// MarkSuccess records a successful call: timestamps the success, clears the
// failure reason, and resets the consecutive failure counter.
func (e *Endpoint) MarkSuccess(at time.Time) {
	e.mutex.Lock()
	e.lastSuccess = at
	e.failureReason = ""
	e.health.consecutiveFailures = 0
	e.health.healthy = true
	e.mutex.Unlock()
}

// MarkFailure records a failed call with its reason and bumps the
// consecutive failure counter.
func (e *Endpoint) MarkFailure(at time.Time, reason string) {
	e.mutex.Lock()
	e.lastFailure = at
	e.failureReason = reason
	e.health.consecutiveFailures++
	e.mutex.Unlock()
}

// LastSuccess returns the time of the most recent successful call.
func (e *Endpoint) LastSuccess() time.Time {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.lastSuccess
}

// LastFailure returns the time of the most recent failed call.
func (e *Endpoint) LastFailure() time.Time {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.lastFailure
}

// FailureReason returns the reason recorded with the last failure.
func (e *Endpoint) FailureReason() string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.failureReason
}

// RecordHealthCheck stores the outcome of a health probe.
// A passing probe resets consecutive failures; a failing one increments them.
func (e *Endpoint) RecordHealthCheck(healthy bool, at time.Time) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.health.lastCheck = at
	e.health.healthy = healthy

	if healthy {
		e.health.consecutiveFailures = 0
	} else {
		e.health.consecutiveFailures++
	}
}

// IsHealthy reports the outcome of the most recent health probe.
func (e *Endpoint) IsHealthy() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.health.healthy
}

// ConsecutiveFailures returns the current consecutive failure count.
func (e *Endpoint) ConsecutiveFailures() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.health.consecutiveFailures
}

// LastHealthCheck returns the time of the most recent health probe.
func (e *Endpoint) LastHealthCheck() time.Time {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.health.lastCheck
}

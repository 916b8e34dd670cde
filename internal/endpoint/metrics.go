package endpoint

import (
	"sync"
	"time"
)

// sampleCap bounds the recent response time queue per endpoint.
const sampleCap = 100

// Metrics accumulates per-endpoint request statistics. The running average
// is a lifetime arithmetic mean; the sample queue keeps only the most
// recent responses for windowed views.
type Metrics struct {
	mutex              sync.Mutex
	requestCount       int64
	successfulRequests int64
	failedRequests     int64
	activeConnections  int
	totalResponseTime  time.Duration
	recentSamples      []time.Duration
}

// NewMetrics creates an empty metrics record.
func NewMetrics() *Metrics {
	return &Metrics{
		recentSamples: make([]time.Duration, 0, sampleCap),
	}
}

// IncrementConn increments the active connection count.
func (m *Metrics) IncrementConn() {
	m.mutex.Lock()
	m.activeConnections++
	m.mutex.Unlock()
}

// DecrementConn decrements the active connection count.
func (m *Metrics) DecrementConn() {
	m.mutex.Lock()
	if m.activeConnections > 0 {
		m.activeConnections--
	}
	m.mutex.Unlock()
}

// ActiveConnections returns the current number of in-flight requests.
func (m *Metrics) ActiveConnections() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.activeConnections
}

// Record accumulates the outcome and latency of one request.
func (m *Metrics) Record(responseTime time.Duration, success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requestCount++
	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}

	m.totalResponseTime += responseTime
	m.recentSamples = append(m.recentSamples, responseTime)
	if len(m.recentSamples) > sampleCap {
		m.recentSamples = m.recentSamples[1:]
	}
}

// RequestCount returns the lifetime request total.
func (m *Metrics) RequestCount() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requestCount
}

// SuccessfulRequests returns the lifetime success total.
func (m *Metrics) SuccessfulRequests() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.successfulRequests
}

// FailedRequests returns the lifetime failure total.
func (m *Metrics) FailedRequests() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.failedRequests
}

// AverageResponseTime returns the lifetime mean response time.
// Returns 0 before any request has been recorded.
func (m *Metrics) AverageResponseTime() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.requestCount == 0 {
		return 0
	}
	return m.totalResponseTime / time.Duration(m.requestCount)
}

// SuccessRate returns the lifetime success ratio in [0,1].
// Endpoints with no traffic yet report 1 so they are not penalised.
func (m *Metrics) SuccessRate() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.requestCount == 0 {
		return 1
	}
	return float64(m.successfulRequests) / float64(m.requestCount)
}

// RecentSamples returns a copy of the bounded recent response time queue.
func (m *Metrics) RecentSamples() []time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := make([]time.Duration, len(m.recentSamples))
	copy(out, m.recentSamples)
	return out
}

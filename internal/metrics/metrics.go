package metrics

import (
	"sort"
	"sync"
	"time"
)

// sampleLimit bounds the per-source latency sample buffer.
const sampleLimit = 1000

type Metrics struct {
	mutex          sync.RWMutex
	operations     map[string]int64
	failures       map[string]int64
	responseTimes  map[string][]time.Duration
	circuitStates  map[string]string
	endpointStatus map[string]string
	failoverCount  int64
	retryCount     int64
	startTime      time.Time
}

type Snapshot struct {
	Uptime          time.Duration             `json:"uptime"`
	TotalOperations int64                     `json:"total_operations"`
	FailoverCount   int64                     `json:"failover_count"`
	RetryCount      int64                     `json:"retry_count"`
	Breakers        map[string]BreakerMetrics `json:"breakers"`
	Endpoints       map[string]string         `json:"endpoints"`
}

type BreakerMetrics struct {
	Operations  int64         `json:"operations"`
	Failures    int64         `json:"failures"`
	State       string        `json:"state,omitempty"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		operations:     make(map[string]int64),
		failures:       make(map[string]int64),
		responseTimes:  make(map[string][]time.Duration),
		circuitStates:  make(map[string]string),
		endpointStatus: make(map[string]string),
		startTime:      time.Now(),
	}
}

func (m *Metrics) RecordOperation(source string, duration time.Duration, success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.operations[source]++
	if !success {
		m.failures[source]++
	}

	m.responseTimes[source] = append(m.responseTimes[source], duration)
	if len(m.responseTimes[source]) > sampleLimit {
		m.responseTimes[source] = m.responseTimes[source][1:]
	}
}

func (m *Metrics) RecordCircuitState(source, state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.circuitStates[source] = state
}

func (m *Metrics) RecordEndpointStatus(endpointID, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.endpointStatus[endpointID] = status
}

func (m *Metrics) RecordFailover() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failoverCount++
}

func (m *Metrics) RecordRetry() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.retryCount++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:        time.Since(m.startTime),
		FailoverCount: m.failoverCount,
		RetryCount:    m.retryCount,
		Breakers:      make(map[string]BreakerMetrics),
		Endpoints:     make(map[string]string),
	}

	// Collect every source that appeared in any map
	allSources := make(map[string]bool)
	for source := range m.operations {
		allSources[source] = true
	}
	for source := range m.circuitStates {
		allSources[source] = true
	}

	for source := range allSources {
		snap.TotalOperations += m.operations[source]

		bm := BreakerMetrics{
			Operations: m.operations[source],
			Failures:   m.failures[source],
			State:      m.circuitStates[source],
		}

		durations := m.responseTimes[source]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Breakers[source] = bm
	}

	for id, status := range m.endpointStatus {
		snap.Endpoints[id] = status
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}

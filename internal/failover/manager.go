package failover

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
	"github.com/angeloszaimis/rpc-resilience/internal/events"
	"github.com/angeloszaimis/rpc-resilience/internal/rpcerror"
)

// Manager tracks the endpoint pool, runs periodic health checks, and keeps
// at most one endpoint active at a time.
type Manager struct {
	opts   Options
	check  CheckFunc
	stream *events.Stream
	logger *slog.Logger

	mutex     sync.RWMutex
	endpoints map[string]*endpoint.Endpoint

	// electionMutex is the single serialization point for reading and
	// replacing the active endpoint, so two concurrent failures cannot
	// elect different winners.
	electionMutex sync.Mutex
	current       *endpoint.Endpoint

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a failover manager. A nil check falls back to the stub
// that reports every endpoint healthy; supply HTTPCheck or a custom probe
// for real health semantics.
func NewManager(opts Options, check CheckFunc, stream *events.Stream, logger *slog.Logger) *Manager {
	if check == nil {
		check = StubCheck()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		opts:      opts,
		check:     check,
		stream:    stream,
		logger:    logger,
		endpoints: make(map[string]*endpoint.Endpoint),
		done:      make(chan struct{}),
	}
}

// AddEndpoint registers an endpoint with the pool.
func (m *Manager) AddEndpoint(ep *endpoint.Endpoint) {
	m.mutex.Lock()
	m.endpoints[ep.ID()] = ep
	m.mutex.Unlock()
}

// RemoveEndpoint drops an endpoint. A removed active endpoint is cleared so
// the next GetActiveEndpoint call elects a replacement.
func (m *Manager) RemoveEndpoint(id string) {
	m.mutex.Lock()
	delete(m.endpoints, id)
	m.mutex.Unlock()

	m.electionMutex.Lock()
	if m.current != nil && m.current.ID() == id {
		m.current = nil
	}
	m.electionMutex.Unlock()
}

// Endpoints returns a snapshot of the pool in stable ID order.
func (m *Manager) Endpoints() []*endpoint.Endpoint {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]*endpoint.Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		out = append(out, ep)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// GetActiveEndpoint returns the current active endpoint, electing one first
// if none is set or the current one has gone stale (no longer available, or
// it failed within the cooldown period).
func (m *Manager) GetActiveEndpoint(ctx context.Context) (*endpoint.Endpoint, error) {
	m.electionMutex.Lock()
	defer m.electionMutex.Unlock()

	if m.current != nil && m.current.IsAvailable() && !m.inCooldown(m.current, time.Now()) {
		return m.current, nil
	}

	return m.failoverLocked(ctx, "active endpoint stale")
}

// Current returns the active endpoint without triggering an election.
// May be nil.
func (m *Manager) Current() *endpoint.Endpoint {
	m.electionMutex.Lock()
	defer m.electionMutex.Unlock()
	return m.current
}

// MarkEndpointUnavailable takes the endpoint out of rotation, recording the
// reason. If it was the active endpoint, the next GetActiveEndpoint call
// fails over.
func (m *Manager) MarkEndpointUnavailable(id, reason string) error {
	ep, err := m.lookup(id)
	if err != nil {
		return err
	}

	ep.MarkFailure(time.Now(), reason)
	old := ep.Status()
	if ep.SetStatus(endpoint.StatusUnavailable) {
		m.publishStatus(ep, old, endpoint.StatusUnavailable, reason)
	}

	return nil
}

// MarkEndpointAvailable returns the endpoint to rotation and clears its
// consecutive failure count.
func (m *Manager) MarkEndpointAvailable(id string) error {
	ep, err := m.lookup(id)
	if err != nil {
		return err
	}

	old := ep.Status()
	ep.RecordHealthCheck(true, time.Now())
	if ep.SetStatus(endpoint.StatusAvailable) {
		m.publishStatus(ep, old, endpoint.StatusAvailable, "marked available")
	}

	return nil
}

// ReportSuccess records a successful call against the endpoint so cooldown
// and health-score bookkeeping stay current.
func (m *Manager) ReportSuccess(id string) {
	if ep, err := m.lookup(id); err == nil {
		ep.MarkSuccess(time.Now())
	}
}

// ReportFailure records a failed call against the endpoint. Endpoints that
// exceed the consecutive failure limit are taken out of rotation.
func (m *Manager) ReportFailure(id, reason string) {
	ep, err := m.lookup(id)
	if err != nil {
		return
	}

	ep.MarkFailure(time.Now(), reason)

	if ep.ConsecutiveFailures() >= m.opts.MaxConsecutiveFailures &&
		ep.Status() == endpoint.StatusAvailable {
		if ep.SetStatus(endpoint.StatusUnavailable) {
			m.publishStatus(ep, endpoint.StatusAvailable, endpoint.StatusUnavailable, reason)
		}
	}
}

// TriggerFailover marks the active endpoint unavailable and elects a
// replacement under the election lock.
func (m *Manager) TriggerFailover(ctx context.Context, reason string) (*endpoint.Endpoint, error) {
	m.electionMutex.Lock()
	defer m.electionMutex.Unlock()

	if m.current != nil {
		m.current.MarkFailure(time.Now(), reason)
		old := m.current.Status()
		if m.current.SetStatus(endpoint.StatusUnavailable) {
			m.publishStatus(m.current, old, endpoint.StatusUnavailable, reason)
		}
	}

	return m.failoverLocked(ctx, reason)
}

// failoverLocked elects a new active endpoint. Must be called with the
// election lock held.
func (m *Manager) failoverLocked(ctx context.Context, reason string) (*endpoint.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	candidates := make([]*endpoint.Endpoint, 0)

	for _, ep := range m.Endpoints() {
		if !ep.IsAvailable() {
			continue
		}
		if m.inCooldown(ep, now) {
			continue
		}
		candidates = append(candidates, ep)
	}

	if len(candidates) == 0 {
		if m.opts.FailurePolicy == KeepTrying && m.current != nil {
			m.logger.Warn("no failover candidate, keeping stale endpoint",
				slog.String("endpoint", m.current.ID()),
				slog.String("reason", reason))
			return m.current, nil
		}

		return nil, &rpcerror.NoEndpointError{Reason: reason}
	}

	chosen := m.selectCandidate(candidates)
	previous := m.current
	m.current = chosen

	previousID := ""
	if previous != nil {
		previousID = previous.ID()
	}

	if previous != chosen {
		m.logger.Info("failover committed",
			slog.String("from", previousID),
			slog.String("to", chosen.ID()),
			slog.String("reason", reason))

		if m.stream != nil {
			m.stream.Publish(events.Record{
				Kind:       events.KindFailoverOccurred,
				Source:     previousID,
				EndpointID: chosen.ID(),
				Detail:     reason,
			})
		}
	}

	return chosen, nil
}

// selectCandidate applies the configured selection strategy. Candidates
// arrive sorted by ID.
func (m *Manager) selectCandidate(candidates []*endpoint.Endpoint) *endpoint.Endpoint {
	switch m.opts.Strategy {
	case SelectPriority:
		best := candidates[0]
		for _, ep := range candidates[1:] {
			if ep.Priority() < best.Priority() {
				best = ep
			}
		}
		return best

	case SelectWeight:
		return weightedPick(candidates)

	case SelectRoundRobin:
		if m.current == nil {
			return candidates[0]
		}
		// Next after the current endpoint in ID order
		for i, ep := range candidates {
			if ep.ID() > m.current.ID() {
				return candidates[i]
			}
		}
		return candidates[0]

	case SelectRandom:
		return candidates[rand.IntN(len(candidates))]

	case SelectHealthScore:
		best := candidates[0]
		bestScore := healthScore(best)
		for _, ep := range candidates[1:] {
			if score := healthScore(ep); score > bestScore {
				best = ep
				bestScore = score
			}
		}
		return best

	default:
		return candidates[0]
	}
}

// healthScore rates an endpoint for failover election:
// 100 base, −10 per consecutive failure, +20 for a success within the last
// five minutes, −50 when the last health probe failed; clamped at zero.
func healthScore(ep *endpoint.Endpoint) float64 {
	score := 100.0
	score -= 10 * float64(ep.ConsecutiveFailures())

	if last := ep.LastSuccess(); !last.IsZero() && time.Since(last) < 5*time.Minute {
		score += 20
	}

	if !ep.IsHealthy() {
		score -= 50
	}

	if score < 0 {
		score = 0
	}
	return score
}

func weightedPick(candidates []*endpoint.Endpoint) *endpoint.Endpoint {
	totalWeight := 0
	for _, ep := range candidates {
		if w := ep.Weight(); w > 0 {
			totalWeight += w
		}
	}

	if totalWeight == 0 {
		return candidates[0]
	}

	draw := rand.IntN(totalWeight)
	for _, ep := range candidates {
		w := ep.Weight()
		if w <= 0 {
			continue
		}
		if draw < w {
			return ep
		}
		draw -= w
	}

	return candidates[len(candidates)-1]
}

func (m *Manager) inCooldown(ep *endpoint.Endpoint, now time.Time) bool {
	last := ep.LastFailure()
	return !last.IsZero() && now.Sub(last) < m.opts.CooldownPeriod
}

func (m *Manager) lookup(id string) (*endpoint.Endpoint, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ep, ok := m.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", id)
	}
	return ep, nil
}

func (m *Manager) publishStatus(ep *endpoint.Endpoint, from, to endpoint.Status, detail string) {
	m.logger.Info("endpoint status changed",
		slog.String("endpoint", ep.ID()),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("detail", detail))

	if m.stream != nil {
		m.stream.Publish(events.Record{
			Kind:       events.KindEndpointStatus,
			EndpointID: ep.ID(),
			OldState:   from.String(),
			NewState:   to.String(),
			Detail:     detail,
		})
	}
}

package loadbalancer

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
	"github.com/angeloszaimis/rpc-resilience/internal/rpcerror"
	"github.com/angeloszaimis/rpc-resilience/internal/strategy"
)

// Context carries per-call selection hints. HashKey pins the call to a ring
// position when the consistent-hash strategy is active.
type Context struct {
	HashKey string
}

// Options tunes load balancer behaviour beyond strategy choice.
type Options struct {
	// AdaptiveWeights recomputes endpoint weights from observed success
	// rate and latency as results are recorded.
	AdaptiveWeights bool
}

type LoadBalancer struct {
	strategy strategy.Strategy
	opts     Options
	logger   *slog.Logger

	mutex     sync.RWMutex
	endpoints map[string]*endpoint.Endpoint

	// Serializes key-set + select so concurrent hash-keyed calls cannot
	// interleave between SetKey and Select.
	selectMutex sync.Mutex
}

func NewLoadBalancer(strat strategy.Strategy, opts Options, logger *slog.Logger) *LoadBalancer {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoadBalancer{
		strategy:  strat,
		opts:      opts,
		logger:    logger,
		endpoints: make(map[string]*endpoint.Endpoint),
	}
}

// AddEndpoint registers an endpoint with the pool.
func (lb *LoadBalancer) AddEndpoint(ep *endpoint.Endpoint) {
	lb.mutex.Lock()
	lb.endpoints[ep.ID()] = ep
	lb.mutex.Unlock()

	lb.rebuildRing()
}

// RemoveEndpoint drops an endpoint from the pool.
func (lb *LoadBalancer) RemoveEndpoint(id string) {
	lb.mutex.Lock()
	delete(lb.endpoints, id)
	lb.mutex.Unlock()

	lb.rebuildRing()
}

// Endpoints returns a snapshot of the pool in stable ID order.
func (lb *LoadBalancer) Endpoints() []*endpoint.Endpoint {
	lb.mutex.RLock()
	defer lb.mutex.RUnlock()

	out := make([]*endpoint.Endpoint, 0, len(lb.endpoints))
	for _, ep := range lb.endpoints {
		out = append(out, ep)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SelectEndpoint picks one available endpoint and reserves a connection slot
// on it. The caller must report the outcome through RecordRequestResult.
func (lb *LoadBalancer) SelectEndpoint(lbctx *Context) (*endpoint.Endpoint, error) {
	available := lb.availableEndpoints()
	if len(available) == 0 {
		return nil, &rpcerror.NoEndpointError{Reason: "all endpoints are unavailable"}
	}

	lb.selectMutex.Lock()

	if lbctx != nil && lbctx.HashKey != "" {
		if ks, ok := lb.strategy.(interface{ SetKey(string) }); ok {
			ks.SetKey(lbctx.HashKey)
		}
	}

	chosen := lb.strategy.Select(available)
	lb.selectMutex.Unlock()

	if chosen == nil {
		return nil, &rpcerror.NoEndpointError{Reason: "strategy returned no endpoint"}
	}

	chosen.Metrics().IncrementConn()
	return chosen, nil
}

// RecordRequestResult releases the connection slot reserved at selection and
// accumulates the call outcome into the endpoint's metrics. With adaptive
// weighting enabled the endpoint weight is recomputed from observed
// performance.
func (lb *LoadBalancer) RecordRequestResult(id string, responseTime time.Duration, success bool) error {
	lb.mutex.RLock()
	ep, ok := lb.endpoints[id]
	lb.mutex.RUnlock()

	if !ok {
		return fmt.Errorf("unknown endpoint %q", id)
	}

	m := ep.Metrics()
	m.Record(responseTime, success)
	m.DecrementConn()

	if lb.opts.AdaptiveWeights {
		lb.adjustWeight(ep)
	}

	return nil
}

// Strategy returns the configured selection strategy.
func (lb *LoadBalancer) Strategy() strategy.Strategy {
	return lb.strategy
}

func (lb *LoadBalancer) availableEndpoints() []*endpoint.Endpoint {
	all := lb.Endpoints()

	available := make([]*endpoint.Endpoint, 0, len(all))
	for _, ep := range all {
		if ep.IsAvailable() {
			available = append(available, ep)
		}
	}

	return available
}

// adjustWeight scales the endpoint's base weight by a performance factor:
// successRate*0.7 + min(2, 1000/avgMs)*0.3. The new weight is applied only
// when it differs from the current one by more than one unit, so weights do
// not thrash on small metric movements.
func (lb *LoadBalancer) adjustWeight(ep *endpoint.Endpoint) {
	m := ep.Metrics()

	latencyFactor := 2.0
	if avgMs := float64(m.AverageResponseTime().Milliseconds()); avgMs > 0 {
		latencyFactor = 1000 / avgMs
		if latencyFactor > 2 {
			latencyFactor = 2
		}
	}

	factor := m.SuccessRate()*0.7 + latencyFactor*0.3

	newWeight := int(math.Round(float64(ep.BaseWeight()) * factor))
	if newWeight < 1 {
		newWeight = 1
	}

	current := ep.Weight()
	if abs(newWeight-current) <= 1 {
		return
	}

	ep.SetEffectiveWeight(newWeight)
	lb.logger.Debug("adjusted endpoint weight",
		slog.String("endpoint", ep.ID()),
		slog.Int("old_weight", current),
		slog.Int("new_weight", newWeight))
}

// rebuildRing refreshes the consistent-hash ring after pool changes, when the
// active strategy keeps one. The ring holds the whole pool; availability is
// applied per selection, so a recovered endpoint gets its keys back.
func (lb *LoadBalancer) rebuildRing() {
	if rb, ok := lb.strategy.(interface {
		Rebuild([]*endpoint.Endpoint)
	}); ok {
		rb.Rebuild(lb.Endpoints())
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

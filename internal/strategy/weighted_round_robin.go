package strategy

import (
	"sync"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
)

// weightedRoundRobinStrategy implements smooth weighted round-robin selection.
// Uses the Nginx algorithm: each endpoint accumulates its weight per selection
// cycle, the highest current value is chosen, then reduced by the sum of all
// weights.
type weightedRoundRobinStrategy struct {
	mutex   sync.Mutex
	current map[string]int // Accumulated weight per endpoint ID
}

// NewWeightedRoundRobinStrategy creates a weighted round-robin strategy instance.
func NewWeightedRoundRobinStrategy() Strategy {
	return &weightedRoundRobinStrategy{
		current: make(map[string]int),
	}
}

// Select picks the endpoint with the highest accumulated weight.
func (w *weightedRoundRobinStrategy) Select(endpoints []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	// Remove stale endpoints from the tracking map
	w.cleanup(endpoints)

	totalWeight := 0
	var chosen *endpoint.Endpoint

	for _, ep := range endpoints {
		weight := ep.Weight()
		if weight <= 0 {
			continue
		}

		w.current[ep.ID()] += weight
		totalWeight += weight

		if chosen == nil || w.current[ep.ID()] > w.current[chosen.ID()] {
			chosen = ep
		}
	}

	if chosen == nil || totalWeight == 0 {
		return nil
	}

	// Reduce the chosen endpoint's current value by the total weight to
	// balance future selections
	w.current[chosen.ID()] -= totalWeight
	return chosen
}

// cleanup removes entries for endpoints no longer in the candidate list.
// Prevents unbounded map growth when endpoints leave the pool.
func (w *weightedRoundRobinStrategy) cleanup(endpoints []*endpoint.Endpoint) {
	alive := make(map[string]struct{}, len(endpoints))

	for _, ep := range endpoints {
		alive[ep.ID()] = struct{}{}
	}

	for id := range w.current {
		if _, ok := alive[id]; !ok {
			delete(w.current, id)
		}
	}
}

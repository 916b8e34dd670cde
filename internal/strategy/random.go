package strategy

import (
	"math/rand/v2"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
)

type randomStrategy struct{}

func (r *randomStrategy) Select(endpoints []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}

	index := rand.IntN(len(endpoints))
	return endpoints[index]
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}

// weightedRandomStrategy picks an endpoint with probability proportional to
// its weight: a cumulative-sum scan over a draw in [0, totalWeight).
type weightedRandomStrategy struct{}

func (w *weightedRandomStrategy) Select(endpoints []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}

	totalWeight := 0
	for _, ep := range endpoints {
		if weight := ep.Weight(); weight > 0 {
			totalWeight += weight
		}
	}

	if totalWeight == 0 {
		return nil
	}

	draw := rand.IntN(totalWeight)
	for _, ep := range endpoints {
		weight := ep.Weight()
		if weight <= 0 {
			continue
		}

		if draw < weight {
			return ep
		}
		draw -= weight
	}

	return nil
}

func NewWeightedRandomStrategy() Strategy {
	return &weightedRandomStrategy{}
}

package strategy

import (
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
)

type leastResponseStrategy struct{}

func (l *leastResponseStrategy) Select(endpoints []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}

	var chosen *endpoint.Endpoint
	var best time.Duration

	for _, ep := range endpoints {
		avg := ep.Metrics().AverageResponseTime()

		// An endpoint with no recorded traffic wins outright so new
		// endpoints get probed
		if avg == 0 {
			return ep
		}

		if chosen == nil || avg < best {
			chosen = ep
			best = avg
		}
	}

	return chosen
}

func NewLeastResponseStrategy() Strategy {
	return &leastResponseStrategy{}
}

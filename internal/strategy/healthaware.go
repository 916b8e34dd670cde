package strategy

import (
	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
)

// healthAwareStrategy scores each endpoint by its observed success rate and
// latency, scaled by the configured weight, and picks the highest score.
//
// score = (successRate*0.7 + min(1, 1000/avgMs)*0.3) * weight
type healthAwareStrategy struct{}

func (h *healthAwareStrategy) Select(endpoints []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}

	var chosen *endpoint.Endpoint
	var best float64

	for _, ep := range endpoints {
		score := healthScore(ep)

		if chosen == nil || score > best {
			chosen = ep
			best = score
		}
	}

	return chosen
}

func healthScore(ep *endpoint.Endpoint) float64 {
	m := ep.Metrics()

	latencyFactor := 1.0
	if avgMs := float64(m.AverageResponseTime().Milliseconds()); avgMs > 0 {
		latencyFactor = 1000 / avgMs
		if latencyFactor > 1 {
			latencyFactor = 1
		}
	}

	score := m.SuccessRate()*0.7 + latencyFactor*0.3
	return score * float64(ep.Weight())
}

func NewHealthAwareStrategy() Strategy {
	return &healthAwareStrategy{}
}

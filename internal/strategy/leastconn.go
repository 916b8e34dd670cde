package strategy

import (
	"math"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
)

type leastConnStrategy struct {
}

func (l *leastConnStrategy) Select(endpoints []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}

	var bestEndpoint *endpoint.Endpoint
	bestConns := math.MaxInt32

	for _, ep := range endpoints {
		activeConns := ep.Metrics().ActiveConnections()
		if activeConns < bestConns {
			bestConns = activeConns
			bestEndpoint = ep
		}
	}

	return bestEndpoint
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}

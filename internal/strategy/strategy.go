package strategy

import (
	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
)

type Strategy interface {
	Select(endpoints []*endpoint.Endpoint) *endpoint.Endpoint
}

package strategy_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
	"github.com/angeloszaimis/rpc-resilience/internal/strategy"
)

func makeEndpoints(n int) []*endpoint.Endpoint {
	endpoints := make([]*endpoint.Endpoint, n)
	for i := 0; i < n; i++ {
		endpoints[i] = endpoint.New("10.0.0.1", 9000+i)
	}
	return endpoints
}

var _ = Describe("RoundRobin", func() {
	var (
		strat     strategy.Strategy
		endpoints []*endpoint.Endpoint
	)

	BeforeEach(func() {
		strat = strategy.NewRoundRobinStrategy()
		endpoints = makeEndpoints(3)
	})

	Describe("Select", func() {
		Context("with all endpoints available", func() {
			It("should cycle through endpoints in order", func() {
				Expect(strat.Select(endpoints)).To(Equal(endpoints[0]))
				Expect(strat.Select(endpoints)).To(Equal(endpoints[1]))
				Expect(strat.Select(endpoints)).To(Equal(endpoints[2]))
				Expect(strat.Select(endpoints)).To(Equal(endpoints[0]))
			})

			It("should distribute load evenly", func() {
				counts := make(map[string]int)
				for i := 0; i < 300; i++ {
					selected := strat.Select(endpoints)
					counts[selected.ID()]++
				}
				for _, ep := range endpoints {
					Expect(counts[ep.ID()]).To(Equal(100))
				}
			})
		})

		Context("with empty endpoint list", func() {
			It("should return nil", func() {
				Expect(strat.Select([]*endpoint.Endpoint{})).To(BeNil())
			})
		})
	})
})

var _ = Describe("LeastResponse", func() {
	var (
		strat     strategy.Strategy
		endpoints []*endpoint.Endpoint
	)

	BeforeEach(func() {
		strat = strategy.NewLeastResponseStrategy()
		endpoints = makeEndpoints(3)
	})

	It("should select the endpoint with the lowest average response time", func() {
		endpoints[0].Metrics().Record(100*time.Millisecond, true)
		endpoints[1].Metrics().Record(50*time.Millisecond, true)
		endpoints[2].Metrics().Record(200*time.Millisecond, true)

		selected := strat.Select(endpoints)
		Expect(selected).To(Equal(endpoints[1]))
	})

	It("should prefer an endpoint with no recorded traffic", func() {
		endpoints[1].Metrics().Record(5*time.Millisecond, true)
		endpoints[2].Metrics().Record(5*time.Millisecond, true)

		selected := strat.Select(endpoints)
		Expect(selected).To(Equal(endpoints[0]))
	})

	It("should return nil for an empty endpoint list", func() {
		Expect(strat.Select([]*endpoint.Endpoint{})).To(BeNil())
	})
})

var _ = Describe("Random", func() {
	var (
		strat     strategy.Strategy
		endpoints []*endpoint.Endpoint
	)

	BeforeEach(func() {
		strat = strategy.NewRandomStrategy()
		endpoints = makeEndpoints(3)
	})

	It("should select an endpoint from the candidates", func() {
		selected := strat.Select(endpoints)
		Expect(selected).NotTo(BeNil())
		Expect(endpoints).To(ContainElement(selected))
	})

	It("should distribute across endpoints over multiple calls", func() {
		seen := make(map[string]bool)

		for i := 0; i < 100; i++ {
			selected := strat.Select(endpoints)
			seen[selected.ID()] = true
		}

		Expect(len(seen)).To(BeNumerically(">=", 2))
	})

	It("should return nil for an empty endpoint list", func() {
		Expect(strat.Select([]*endpoint.Endpoint{})).To(BeNil())
	})
})

var _ = Describe("WeightedRandom", func() {
	var strat strategy.Strategy

	BeforeEach(func() {
		strat = strategy.NewWeightedRandomStrategy()
	})

	It("should favor heavier endpoints", func() {
		endpoints := makeEndpoints(2)
		endpoints[0].SetWeight(9)
		endpoints[1].SetWeight(1)

		counts := make(map[string]int)
		for i := 0; i < 2000; i++ {
			counts[strat.Select(endpoints).ID()]++
		}

		Expect(counts[endpoints[0].ID()]).To(BeNumerically(">", counts[endpoints[1].ID()]))
		Expect(counts[endpoints[0].ID()]).To(BeNumerically("~", 1800, 120))
	})

	It("should skip zero-weight endpoints", func() {
		endpoints := makeEndpoints(2)
		endpoints[0].SetWeight(0)
		endpoints[1].SetWeight(5)

		for i := 0; i < 50; i++ {
			Expect(strat.Select(endpoints)).To(Equal(endpoints[1]))
		}
	})

	It("should return nil when all weights are zero", func() {
		endpoints := makeEndpoints(2)
		endpoints[0].SetWeight(0)
		endpoints[1].SetWeight(0)

		Expect(strat.Select(endpoints)).To(BeNil())
	})
})

var _ = Describe("LeastConn", func() {
	var (
		strat     strategy.Strategy
		endpoints []*endpoint.Endpoint
	)

	BeforeEach(func() {
		strat = strategy.NewLeastConnStrategy()
		endpoints = makeEndpoints(3)
	})

	It("should select the endpoint with the fewest connections", func() {
		endpoints[0].Metrics().IncrementConn()
		endpoints[0].Metrics().IncrementConn()
		endpoints[1].Metrics().IncrementConn()

		selected := strat.Select(endpoints)
		Expect(selected).To(Equal(endpoints[2]))
	})
})

var _ = Describe("HealthAware", func() {
	var (
		strat     strategy.Strategy
		endpoints []*endpoint.Endpoint
	)

	BeforeEach(func() {
		strat = strategy.NewHealthAwareStrategy()
		endpoints = makeEndpoints(2)
	})

	It("should prefer the endpoint with the better success rate", func() {
		for i := 0; i < 10; i++ {
			endpoints[0].Metrics().Record(10*time.Millisecond, false)
			endpoints[1].Metrics().Record(10*time.Millisecond, true)
		}

		Expect(strat.Select(endpoints)).To(Equal(endpoints[1]))
	})

	It("should prefer the faster endpoint at equal success rates", func() {
		for i := 0; i < 10; i++ {
			endpoints[0].Metrics().Record(2*time.Second, true)
			endpoints[1].Metrics().Record(10*time.Millisecond, true)
		}

		Expect(strat.Select(endpoints)).To(Equal(endpoints[1]))
	})

	It("should scale scores by weight", func() {
		endpoints[0].SetWeight(10)
		endpoints[1].SetWeight(1)

		Expect(strat.Select(endpoints)).To(Equal(endpoints[0]))
	})
})

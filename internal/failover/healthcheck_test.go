package failover_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
	"github.com/angeloszaimis/rpc-resilience/internal/failover"
)

// failingCheck reports unhealthy for the endpoints whose IDs it was given.
func failingCheck(ids ...string) failover.CheckFunc {
	failing := make(map[string]bool, len(ids))
	for _, id := range ids {
		failing[id] = true
	}

	return func(ctx context.Context, ep *endpoint.Endpoint) (bool, error) {
		return !failing[ep.ID()], nil
	}
}

var _ = Describe("health checking", func() {
	var (
		ctx  context.Context
		opts failover.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		opts = managerOptions()
	})

	Describe("PerformHealthCheck", func() {
		It("should record probe outcomes on every endpoint", func() {
			manager := failover.NewManager(opts, failingCheck("bad"), nil, nil)
			defer manager.Close()

			good := endpoint.NewWithID("good", "10.0.0.1", 9001)
			bad := endpoint.NewWithID("bad", "10.0.0.2", 9002)
			manager.AddEndpoint(good)
			manager.AddEndpoint(bad)

			manager.PerformHealthCheck(ctx)

			Expect(good.IsHealthy()).To(BeTrue())
			Expect(bad.IsHealthy()).To(BeFalse())
			Expect(bad.ConsecutiveFailures()).To(Equal(1))
			Expect(good.LastHealthCheck()).NotTo(BeZero())
		})

		It("should take an endpoint out of rotation after repeated failed probes", func() {
			manager := failover.NewManager(opts, failingCheck("bad"), nil, nil)
			defer manager.Close()

			bad := endpoint.NewWithID("bad", "10.0.0.2", 9002)
			manager.AddEndpoint(bad)

			for i := 0; i < 2; i++ {
				manager.PerformHealthCheck(ctx)
				Expect(bad.Status()).To(Equal(endpoint.StatusAvailable))
			}

			manager.PerformHealthCheck(ctx)
			Expect(bad.Status()).To(Equal(endpoint.StatusUnavailable))
		})

		It("should restore an unavailable endpoint on a passing probe", func() {
			manager := failover.NewManager(opts, failingCheck(), nil, nil)
			defer manager.Close()

			ep := endpoint.NewWithID("recovering", "10.0.0.1", 9001)
			ep.SetStatus(endpoint.StatusUnavailable)
			manager.AddEndpoint(ep)

			manager.PerformHealthCheck(ctx)

			Expect(ep.Status()).To(Equal(endpoint.StatusAvailable))
			Expect(ep.ConsecutiveFailures()).To(BeZero())
		})

		It("should never pull an endpoint out of maintenance", func() {
			manager := failover.NewManager(opts, failingCheck(), nil, nil)
			defer manager.Close()

			ep := endpoint.NewWithID("drained", "10.0.0.1", 9001)
			ep.SetStatus(endpoint.StatusMaintenance)
			manager.AddEndpoint(ep)

			manager.PerformHealthCheck(ctx)

			Expect(ep.Status()).To(Equal(endpoint.StatusMaintenance))
		})

		It("should count a probe error as a failed check", func() {
			check := func(ctx context.Context, ep *endpoint.Endpoint) (bool, error) {
				return true, errors.New("probe exploded")
			}
			manager := failover.NewManager(opts, check, nil, nil)
			defer manager.Close()

			ep := endpoint.NewWithID("flaky", "10.0.0.1", 9001)
			manager.AddEndpoint(ep)

			manager.PerformHealthCheck(ctx)

			Expect(ep.IsHealthy()).To(BeFalse())
			Expect(ep.ConsecutiveFailures()).To(Equal(1))
		})
	})

	Describe("Start", func() {
		It("should probe periodically until closed", func() {
			var probes atomic.Int64
			check := func(ctx context.Context, ep *endpoint.Endpoint) (bool, error) {
				probes.Add(1)
				return true, nil
			}

			opts.HealthCheckInterval = 10 * time.Millisecond
			manager := failover.NewManager(opts, check, nil, nil)
			manager.AddEndpoint(endpoint.NewWithID("watched", "10.0.0.1", 9001))

			manager.Start(ctx)
			Eventually(probes.Load).Should(BeNumerically(">=", 2))

			manager.Close()
			settled := probes.Load()
			Consistently(probes.Load, 100*time.Millisecond).Should(BeNumerically("<=", settled+1))
		})
	})

	Describe("HTTPCheck", func() {
		endpointFor := func(srv *httptest.Server) *endpoint.Endpoint {
			host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			port, err := strconv.Atoi(portStr)
			Expect(err).NotTo(HaveOccurred())
			return endpoint.NewWithID("http", host, port)
		}

		It("should treat a 200 response as healthy", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/health"))
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			healthy, err := failover.HTTPCheck("/health")(ctx, endpointFor(srv))
			Expect(err).NotTo(HaveOccurred())
			Expect(healthy).To(BeTrue())
		})

		It("should treat a non-200 response as unhealthy", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer srv.Close()

			healthy, err := failover.HTTPCheck("/health")(ctx, endpointFor(srv))
			Expect(err).NotTo(HaveOccurred())
			Expect(healthy).To(BeFalse())
		})

		It("should bound the probe by the caller's context alone", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(80 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			check := failover.HTTPCheck("/health")
			ep := endpointFor(srv)

			short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			_, err := check(short, ep)
			Expect(err).To(HaveOccurred())

			long, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer cancel()
			healthy, err := check(long, ep)
			Expect(err).NotTo(HaveOccurred())
			Expect(healthy).To(BeTrue())
		})

		It("should surface connection errors", func() {
			ep := endpoint.NewWithID("unreachable", "127.0.0.1", 1)

			healthy, err := failover.HTTPCheck("/health")(ctx, ep)
			Expect(err).To(HaveOccurred())
			Expect(healthy).To(BeFalse())
		})
	})
})

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/rpc-resilience/config"
	"github.com/angeloszaimis/rpc-resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
	"github.com/angeloszaimis/rpc-resilience/internal/events"
	"github.com/angeloszaimis/rpc-resilience/internal/executor"
	"github.com/angeloszaimis/rpc-resilience/internal/failover"
	"github.com/angeloszaimis/rpc-resilience/internal/metrics"
)

var _ = Describe("router", func() {
	var (
		backend   *httptest.Server
		stream    *events.Stream
		collector *metrics.Collector
		manager   *failover.Manager
		registry  *circuitbreaker.Registry
		mux       *http.ServeMux
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		host, portStr, err := net.SplitHostPort(backend.Listener.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		port, err := strconv.Atoi(portStr)
		Expect(err).NotTo(HaveOccurred())

		stream = events.NewStream(128)
		collector = metrics.NewCollector(stream, nil)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		collector.Start(ctx)

		opts := failover.DefaultOptions()
		manager = failover.NewManager(opts, failover.HTTPCheck("/health"), stream, nil)
		manager.AddEndpoint(endpoint.NewWithID("backend-1", host, port))

		registry = circuitbreaker.NewRegistry(circuitbreaker.DefaultOptions(), stream, nil)
		exec := executor.New(manager, nil, registry, nil, nil)

		mux = setupRouter(collector, manager, registry, exec, "/health")
	})

	AfterEach(func() {
		cancel()
		manager.Close()
		registry.Close()
		stream.Close()
		backend.Close()
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	It("should answer the liveness probe", func() {
		Expect(get("/healthz").Code).To(Equal(http.StatusOK))
	})

	It("should serve the metrics snapshot", func() {
		rec := get("/status")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var snap metrics.Snapshot
		Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
	})

	It("should list endpoints and mark the active one", func() {
		_, err := manager.GetActiveEndpoint(context.Background())
		Expect(err).NotTo(HaveOccurred())

		rec := get("/endpoints")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var views []struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			IsCurrent bool   `json:"is_current"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &views)).To(Succeed())
		Expect(views).To(HaveLen(1))
		Expect(views[0].ID).To(Equal("backend-1"))
		Expect(views[0].Status).To(Equal("AVAILABLE"))
		Expect(views[0].IsCurrent).To(BeTrue())
	})

	It("should expose breaker stats after traffic", func() {
		rec := get("/probe")
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = get("/breakers")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var out map[string]map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
		Expect(out).To(HaveKey("backend-1"))
		Expect(out["backend-1"]["state"]).To(Equal("CLOSED"))
	})

	Describe("the probe endpoint", func() {
		It("should reach the active backend through the resilience path", func() {
			rec := get("/probe")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body["endpoint"]).To(Equal("backend-1"))
		})

		It("should report unavailability when the backend is down", func() {
			Expect(manager.MarkEndpointUnavailable("backend-1", "test outage")).To(Succeed())

			rec := get("/probe")
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

			var body map[string]string
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body["error"]).NotTo(BeEmpty())
		})
	})
})

var _ = Describe("createStrategy", func() {
	log := slog.Default()

	DescribeTable("algorithm selection",
		func(name string) {
			Expect(createStrategy(log, name, 100)).NotTo(BeNil())
		},
		Entry("round-robin", "round-robin"),
		Entry("weighted-round-robin", "weighted-round-robin"),
		Entry("random", "random"),
		Entry("weighted-random", "weighted-random"),
		Entry("least-conn", "least-conn"),
		Entry("least-response", "least-response"),
		Entry("health-aware", "health-aware"),
		Entry("consistent-hash", "consistent-hash"),
	)

	It("should fall back to round-robin for unknown names", func() {
		strat := createStrategy(log, "mystery", 100)
		Expect(strat).NotTo(BeNil())

		eps := []*endpoint.Endpoint{
			endpoint.NewWithID("a", "10.0.0.1", 9001),
			endpoint.NewWithID("b", "10.0.0.2", 9002),
		}
		Expect(strat.Select(eps)).To(Equal(eps[0]))
		Expect(strat.Select(eps)).To(Equal(eps[1]))
	})

	It("should honor the hash key on the consistent-hash strategy", func() {
		strat := createStrategy(log, "consistent-hash", 50)

		keyed, ok := strat.(interface{ SetKey(string) })
		Expect(ok).To(BeTrue())
		keyed.SetKey("tenant-1")

		eps := []*endpoint.Endpoint{
			endpoint.NewWithID("a", "10.0.0.1", 9001),
			endpoint.NewWithID("b", "10.0.0.2", 9002),
		}
		first := strat.Select(eps)
		Expect(first).NotTo(BeNil())
		Expect(strat.Select(eps)).To(Equal(first))
	})
})

var _ = Describe("buildEndpoints", func() {
	It("should apply IDs, priorities and weights from the configuration", func() {
		cfg := &config.Config{
			Endpoints: []config.EndpointConfig{
				{ID: "primary", Address: "10.0.0.1", Port: 9001, Priority: 1, Weight: 3},
				{Address: "10.0.0.2", Port: 9002},
			},
		}

		eps := buildEndpoints(cfg)
		Expect(eps).To(HaveLen(2))

		Expect(eps[0].ID()).To(Equal("primary"))
		Expect(eps[0].Priority()).To(Equal(1))
		Expect(eps[0].Weight()).To(Equal(3))

		Expect(eps[1].ID()).NotTo(BeEmpty())
		Expect(eps[1].Priority()).To(Equal(1))
		Expect(eps[1].Weight()).To(Equal(1))
	})
})

var _ = Describe("logEvents", func() {
	It("should drain the stream until the context ends", func() {
		stream := events.NewStream(16)
		defer stream.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			logEvents(ctx, stream, slog.Default())
		}()

		stream.Publish(events.Record{Kind: events.KindRetryAttempt})
		cancel()

		Eventually(done, time.Second).Should(BeClosed())
	})
})

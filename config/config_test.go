package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/rpc-resilience/config"
	"github.com/angeloszaimis/rpc-resilience/internal/failover"
	"github.com/angeloszaimis/rpc-resilience/internal/retry"
)

const validYAML = `
server:
  address: ":9090"
  environment: "prod"

logging:
  level: "debug"

endpoints:
  - id: "primary"
    address: "10.0.0.1"
    port: 9001
    priority: 1
    weight: 3
  - address: "10.0.0.2"
    port: 9002
    priority: 2
    weight: 1

load_balancing:
  algorithm: "weighted-round-robin"
  adaptive_weights: true

circuit_breaker:
  failure_threshold: 4
  timeout: "10s"

retry:
  max_retries: 5
  base_delay: "50ms"

failover:
  strategy: "health-score"
  cooldown_period: "45s"
`

// writeConfig drops a config.yaml in a temp dir and makes it the working
// directory so Load picks it up.
func writeConfig(content string) {
	dir := GinkgoT().TempDir()
	Expect(os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644)).To(Succeed())

	wd, err := os.Getwd()
	Expect(err).NotTo(HaveOccurred())
	Expect(os.Chdir(dir)).To(Succeed())
	DeferCleanup(func() {
		Expect(os.Chdir(wd)).To(Succeed())
	})
}

var _ = Describe("Load", func() {
	BeforeEach(func() {
		viper.Reset()
	})

	It("should merge file values over the defaults", func() {
		writeConfig(validYAML)

		cfg, err := config.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Server.Address).To(Equal(":9090"))
		Expect(cfg.Server.Environment).To(Equal("prod"))
		Expect(cfg.Logging.Level).To(Equal("debug"))

		Expect(cfg.Endpoints).To(HaveLen(2))
		Expect(cfg.Endpoints[0].ID).To(Equal("primary"))
		Expect(cfg.Endpoints[0].Weight).To(Equal(3))
		Expect(cfg.Endpoints[1].ID).To(BeEmpty())

		Expect(cfg.LoadBalancing.Algorithm).To(Equal("weighted-round-robin"))
		Expect(cfg.LoadBalancing.AdaptiveWeights).To(BeTrue())
		// Untouched keys keep their defaults
		Expect(cfg.LoadBalancing.VirtualNodes).To(Equal(100))

		Expect(cfg.CircuitBreaker.FailureThreshold).To(Equal(int64(4)))
		Expect(cfg.CircuitBreaker.Timeout).To(Equal("10s"))
		Expect(cfg.CircuitBreaker.SuccessThreshold).To(Equal(int64(3)))

		Expect(cfg.Retry.MaxRetries).To(Equal(5))
		Expect(cfg.Retry.Strategy).To(Equal("exponential-jitter"))

		Expect(cfg.Failover.Strategy).To(Equal("health-score"))
		Expect(cfg.Failover.FailurePolicy).To(Equal("failfast"))
		Expect(cfg.Failover.HealthCheckPath).To(Equal("/health"))
	})

	It("should reject a configuration without endpoints", func() {
		writeConfig(`
endpoints: []
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unknown load balancing algorithm", func() {
		writeConfig(`
endpoints:
  - address: "10.0.0.1"
    port: 9001
load_balancing:
  algorithm: "fastest-first"
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("LoadBalancing"))
	})

	It("should reject a malformed duration", func() {
		writeConfig(`
endpoints:
  - address: "10.0.0.1"
    port: 9001
circuit_breaker:
  timeout: "thirty seconds"
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("should reject an out-of-range endpoint port", func() {
		writeConfig(`
endpoints:
  - address: "10.0.0.1"
    port: 70000
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unknown environment", func() {
		writeConfig(`
server:
  environment: "qa"
endpoints:
  - address: "10.0.0.1"
    port: 9001
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})

	It("should reject a malformed listen address", func() {
		writeConfig(`
server:
  address: "no-port-here"
endpoints:
  - address: "10.0.0.1"
    port: 9001
`)

		_, err := config.Load()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("component option conversion", func() {
	var cfg *config.Config

	BeforeEach(func() {
		viper.Reset()
		writeConfig(validYAML)

		var err error
		cfg, err = config.Load()
		Expect(err).NotTo(HaveOccurred())
	})

	It("should parse circuit breaker durations", func() {
		opts, err := cfg.CircuitBreakerOptions()
		Expect(err).NotTo(HaveOccurred())

		Expect(opts.FailureThreshold).To(Equal(int64(4)))
		Expect(opts.Timeout).To(Equal(10 * time.Second))
		Expect(opts.SamplingPeriod).To(Equal(60 * time.Second))
		Expect(opts.Validate()).To(Succeed())
	})

	It("should parse retry durations and the strategy", func() {
		opts, err := cfg.RetryOptions()
		Expect(err).NotTo(HaveOccurred())

		Expect(opts.MaxRetries).To(Equal(5))
		Expect(opts.BaseDelay).To(Equal(50 * time.Millisecond))
		Expect(opts.Strategy).To(Equal(retry.DelayExponentialJitter))
		Expect(opts.Validate()).To(Succeed())
	})

	It("should parse failover durations and enums", func() {
		opts, err := cfg.FailoverOptions()
		Expect(err).NotTo(HaveOccurred())

		Expect(opts.Strategy).To(Equal(failover.SelectHealthScore))
		Expect(opts.CooldownPeriod).To(Equal(45 * time.Second))
		Expect(opts.MaxConsecutiveFailures).To(Equal(3))
		Expect(opts.Validate()).To(Succeed())
	})

	It("should carry the adaptive weights flag", func() {
		Expect(cfg.LoadBalancerOptions().AdaptiveWeights).To(BeTrue())
	})
})

package config

import (
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type EndpointConfig struct {
	ID       string `mapstructure:"id"`
	Address  string `mapstructure:"address"`
	Port     int    `mapstructure:"port"`
	Priority int    `mapstructure:"priority"`
	Weight   int    `mapstructure:"weight"`
}

type LoadBalancingConfig struct {
	Algorithm       string `mapstructure:"algorithm"`
	VirtualNodes    int    `mapstructure:"virtual_nodes"`
	AdaptiveWeights bool   `mapstructure:"adaptive_weights"`
}

type CircuitBreakerConfig struct {
	FailureThreshold     int64   `mapstructure:"failure_threshold"`
	SuccessThreshold     int64   `mapstructure:"success_threshold"`
	Timeout              string  `mapstructure:"timeout"`
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`
	MinimumThroughput    int64   `mapstructure:"minimum_throughput"`
	SamplingPeriod       string  `mapstructure:"sampling_period"`
	MonitorInterval      string  `mapstructure:"monitor_interval"`
	MonitorTimeouts      bool    `mapstructure:"monitor_timeouts"`
	EnableAutoReset      bool    `mapstructure:"enable_auto_reset"`
}

type RetryConfig struct {
	MaxRetries        int     `mapstructure:"max_retries"`
	BaseDelay         string  `mapstructure:"base_delay"`
	MaxDelay          string  `mapstructure:"max_delay"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	Strategy          string  `mapstructure:"strategy"`
	EnableJitter      bool    `mapstructure:"enable_jitter"`
	TotalTimeout      string  `mapstructure:"total_timeout"`
}

type FailoverConfig struct {
	Strategy               string `mapstructure:"strategy"`
	FailurePolicy          string `mapstructure:"failure_policy"`
	CooldownPeriod         string `mapstructure:"cooldown_period"`
	MaxConsecutiveFailures int    `mapstructure:"max_consecutive_failures"`
	HealthCheckInterval    string `mapstructure:"health_check_interval"`
	HealthCheckTimeout     string `mapstructure:"health_check_timeout"`
	HealthCheckPath        string `mapstructure:"health_check_path"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Endpoints      []EndpointConfig     `mapstructure:"endpoints"`
	LoadBalancing  LoadBalancingConfig  `mapstructure:"load_balancing"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Retry          RetryConfig          `mapstructure:"retry"`
	Failover       FailoverConfig       `mapstructure:"failover"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetDefault("load_balancing.algorithm", "round-robin")
	viper.SetDefault("load_balancing.virtual_nodes", 100)
	viper.SetDefault("load_balancing.adaptive_weights", false)

	viper.SetDefault("circuit_breaker.failure_threshold", 5)
	viper.SetDefault("circuit_breaker.success_threshold", 3)
	viper.SetDefault("circuit_breaker.timeout", "30s")
	viper.SetDefault("circuit_breaker.failure_rate_threshold", 50)
	viper.SetDefault("circuit_breaker.minimum_throughput", 10)
	viper.SetDefault("circuit_breaker.sampling_period", "60s")
	viper.SetDefault("circuit_breaker.monitor_interval", "10s")
	viper.SetDefault("circuit_breaker.monitor_timeouts", true)
	viper.SetDefault("circuit_breaker.enable_auto_reset", true)

	viper.SetDefault("retry.max_retries", 3)
	viper.SetDefault("retry.base_delay", "100ms")
	viper.SetDefault("retry.max_delay", "30s")
	viper.SetDefault("retry.backoff_multiplier", 2.0)
	viper.SetDefault("retry.strategy", "exponential-jitter")
	viper.SetDefault("retry.enable_jitter", false)
	viper.SetDefault("retry.total_timeout", "2m")

	viper.SetDefault("failover.strategy", "priority")
	viper.SetDefault("failover.failure_policy", "failfast")
	viper.SetDefault("failover.cooldown_period", "30s")
	viper.SetDefault("failover.max_consecutive_failures", 3)
	viper.SetDefault("failover.health_check_interval", "15s")
	viper.SetDefault("failover.health_check_timeout", "5s")
	viper.SetDefault("failover.health_check_path", "/health")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Endpoints,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateEndpointConfig)),
		),
		validation.Field(&c.LoadBalancing,
			validation.Required,
			validation.By(func(value interface{}) error {
				lb, ok := value.(LoadBalancingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoadBalancingConfig")
				}
				return validation.ValidateStruct(&lb,
					validation.Field(&lb.Algorithm,
						validation.Required,
						validation.In("round-robin", "weighted-round-robin", "random",
							"weighted-random", "least-conn", "least-response",
							"health-aware", "consistent-hash"),
					),
					validation.Field(&lb.VirtualNodes,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				cb, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cb,
					validation.Field(&cb.FailureThreshold, validation.Required, validation.Min(int64(1))),
					validation.Field(&cb.SuccessThreshold, validation.Required, validation.Min(int64(1))),
					validation.Field(&cb.Timeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&cb.FailureRateThreshold, validation.Required,
						validation.Min(float64(0)), validation.Max(float64(100))),
					validation.Field(&cb.MinimumThroughput, validation.Required, validation.Min(int64(1))),
					validation.Field(&cb.SamplingPeriod, validation.Required, validation.By(validateDuration)),
					validation.Field(&cb.MonitorInterval, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Retry,
			validation.Required,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RetryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RetryConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.MaxRetries, validation.Min(0)),
					validation.Field(&rc.BaseDelay, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.MaxDelay, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.BackoffMultiplier, validation.Required, validation.Min(float64(1))),
					validation.Field(&rc.Strategy,
						validation.Required,
						validation.In("fixed", "linear", "exponential", "exponential-jitter"),
					),
					validation.Field(&rc.TotalTimeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Failover,
			validation.Required,
			validation.By(func(value interface{}) error {
				fc, ok := value.(FailoverConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a FailoverConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.Strategy,
						validation.Required,
						validation.In("priority", "weight", "round-robin", "random", "health-score"),
					),
					validation.Field(&fc.FailurePolicy,
						validation.Required,
						validation.In("failfast", "keeptrying"),
					),
					validation.Field(&fc.CooldownPeriod, validation.Required, validation.By(validateDuration)),
					validation.Field(&fc.MaxConsecutiveFailures, validation.Required, validation.Min(1)),
					validation.Field(&fc.HealthCheckInterval, validation.Required, validation.By(validateDuration)),
					validation.Field(&fc.HealthCheckTimeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateEndpointConfig(value interface{}) error {
	ep, ok := value.(EndpointConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an EndpointConfig")
	}

	return validation.ValidateStruct(&ep,
		validation.Field(&ep.Address, validation.Required, is.Host),
		validation.Field(&ep.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&ep.Priority, validation.Min(0)),
		validation.Field(&ep.Weight, validation.Min(0)),
	)
}

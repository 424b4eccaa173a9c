package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	API            APIConfig            `mapstructure:"api"`
	Worker         WorkerConfig         `mapstructure:"worker"`
	Database       DatabaseConfig       `mapstructure:"database"`
	NATS           NATSConfig           `mapstructure:"nats"`
	Provider       ProviderConfig       `mapstructure:"provider"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Retry          RetryPolicyConfig    `mapstructure:"retry"`
	TaskManager    TaskManagerConfig    `mapstructure:"task_manager"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Log            LogConfig            `mapstructure:"log"`
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    string        `mapstructure:"port"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	EnableDefaultMiddleware *bool         `mapstructure:"enable_default_middleware"`
	EnableCORS              *bool         `mapstructure:"enable_cors"`
	EnableSecurityHeaders   *bool         `mapstructure:"enable_security_headers"`
	EnableLogging           *bool         `mapstructure:"enable_logging"`
	EnableErrorHandling     *bool         `mapstructure:"enable_error_handling"`
}

// WorkerConfig holds queue worker configuration.
type WorkerConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ItemTimeout       time.Duration `mapstructure:"item_timeout"`
	Concurrency       int           `mapstructure:"concurrency"`
	QueueGroup        string        `mapstructure:"queue_group"`
	StaleClaimTTL     time.Duration `mapstructure:"stale_claim_ttl"`
	StaleSweepEvery   time.Duration `mapstructure:"stale_sweep_every"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Name               string `mapstructure:"name"`
	SSLMode            string `mapstructure:"sslmode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	TestMode      bool          `mapstructure:"test_mode"`
}

// ProviderConfig holds embedding provider API configuration.
type ProviderConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	// CostPerMillionTokens converts token usage into estimated spend on
	// outcome events and rollups.
	CostPerMillionTokens float64 `mapstructure:"cost_per_million_tokens"`
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	HalfOpenProbes   int           `mapstructure:"half_open_probes"`
}

// RateLimitConfig holds rate-limit deferral configuration.
type RateLimitConfig struct {
	DefaultDelay time.Duration `mapstructure:"default_delay"`
	MaxDeferrals int           `mapstructure:"max_deferrals"`
}

// TaskManagerConfig holds the in-process task queue configuration.
type TaskManagerConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// MetricsConfig holds rollup aggregation configuration.
type MetricsConfig struct {
	RollupInterval time.Duration `mapstructure:"rollup_interval"`
	Lookback       time.Duration `mapstructure:"lookback"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	// Unmarshal configuration
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Required fields validation
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}

	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}

	// Validate provider config when in production
	if c.Log.Level == "error" || c.Log.Level == "fatal" {
		if c.Provider.APIKey == "" {
			return errors.New("provider.api_key is required in production")
		}
	}

	// Validate numeric ranges
	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}

	if c.Worker.BatchSize < 1 {
		return errors.New("worker.batch_size must be at least 1")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	if c.CircuitBreaker.FailureThreshold < 1 {
		return errors.New("circuit_breaker.failure_threshold must be at least 1")
	}

	if c.RateLimit.DefaultDelay <= 0 {
		return errors.New("rate_limit.default_delay must be positive")
	}

	if c.TaskManager.MaxConcurrent < 1 {
		return errors.New("task_manager.max_concurrent must be at least 1")
	}

	return c.Retry.Validate()
}

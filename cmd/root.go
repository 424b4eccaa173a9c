package cmd

import (
	"fmt"
	"os"
	"strings"

	"embedqueue/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// newRootCmd builds a bare root command. Persistent flags are attached in
// init so tests can construct isolated command trees without flag clashes.
func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embedqueue",
		Short: "An embedding generation queue and worker coordinator",
		Long: `EmbedQueue is a production-grade queue and coordination layer for
generating receipt embeddings against an external provider API.

The system supports:
- Durable queueing of embedding work in PostgreSQL
- Batch claiming with per-worker leases and heartbeats
- Rate-limit deferral and exponential retry backoff
- Circuit breaking around the embedding provider
- Item lifecycle events over NATS JetStream
- Hourly and daily performance rollups`,
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	// Bind flags to viper
	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Set config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("EMBEDQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindMiddlewareEnvVars(v)

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; use defaults and environment
	}

	// Load configuration
	cfg = config.New(v)
}

func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.port", "8080")
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "10s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 5)
	v.SetDefault("worker.poll_interval", "5s")
	v.SetDefault("worker.heartbeat_interval", "30s")
	v.SetDefault("worker.item_timeout", "90s")
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.queue_group", "embed-workers")
	v.SetDefault("worker.stale_claim_ttl", "10m")
	v.SetDefault("worker.stale_sweep_every", "1m")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "embedqueue")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Embedding provider defaults
	v.SetDefault("provider.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("provider.model", "text-embedding-004")
	v.SetDefault("provider.timeout", "60s")
	v.SetDefault("provider.requests_per_second", 2.0)
	v.SetDefault("provider.burst", 4)
	v.SetDefault("provider.cost_per_million_tokens", 0.15)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.open_timeout", "60s")
	v.SetDefault("circuit_breaker.half_open_probes", 1)

	// Rate-limit deferral defaults
	v.SetDefault("rate_limit.default_delay", "60s")
	v.SetDefault("rate_limit.max_deferrals", 20)

	// Retry defaults
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.backoff_base", "1s")
	v.SetDefault("retry.backoff_cap", "5m")

	// Task manager defaults
	v.SetDefault("task_manager.max_concurrent", 2)
	v.SetDefault("task_manager.queue_capacity", 64)

	// Metrics rollup defaults
	v.SetDefault("metrics.rollup_interval", "1m")
	v.SetDefault("metrics.lookback", "24h")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// bindMiddlewareEnvVars binds the middleware toggle keys explicitly. They
// have no defaults, so AutomaticEnv alone never surfaces them and the *bool
// fields would stay nil even when the variables are set.
func bindMiddlewareEnvVars(v *viper.Viper) {
	keys := []string{
		"api.enable_default_middleware",
		"api.enable_cors",
		"api.enable_security_headers",
		"api.enable_logging",
		"api.enable_error_handling",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s: %v\n", key, err)
		}
	}
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}

// SetTestConfig replaces the loaded configuration. Only tests should call
// this; production code receives its config through initConfig.
func SetTestConfig(testConfig *config.Config) {
	cfg = testConfig
}

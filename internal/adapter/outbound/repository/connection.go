package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"embedqueue/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the schema holding the queue tables.
const DefaultSchema = "embedqueue"

// DatabaseConfig represents database connection configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	Schema          string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SSLMode         string
}

// DatabaseConfigFromApp builds a connection config from the application
// configuration tree.
func DatabaseConfigFromApp(cfg config.DatabaseConfig) DatabaseConfig {
	return DatabaseConfig{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Database:       cfg.Name,
		Username:       cfg.User,
		Password:       cfg.Password,
		Schema:         DefaultSchema,
		MaxConnections: cfg.MaxConnections,
		MinConnections: cfg.MaxIdleConnections,
		SSLMode:        cfg.SSLMode,
	}
}

// Validate validates the database configuration.
func (c DatabaseConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.Schema == "" {
		return errors.New("schema is required")
	}
	return nil
}

// NewDatabaseConnection creates a new database connection pool.
func NewDatabaseConnection(config DatabaseConfig) (*pgxpool.Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		config.Host, config.Port, config.Database, config.Username, config.Password, sslMode, config.Schema,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConnections > 0 {
		poolConfig.MaxConns = int32(config.MaxConnections)
	} else {
		poolConfig.MaxConns = 10 // default
	}

	if config.MinConnections > 0 {
		poolConfig.MinConns = int32(config.MinConnections)
	}

	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return pool, nil
}

// HealthMetrics represents database health metrics.
type HealthMetrics struct {
	TotalConnections  int32
	ActiveConnections int32
	IdleConnections   int32
	ResponseTime      time.Duration
}

// HealthCheckCacheConfig represents configuration for health metrics caching.
type HealthCheckCacheConfig struct {
	TTL     time.Duration
	Enabled bool
}

// Default cache configuration constants.
const (
	DefaultCacheTTL     = 5 * time.Second
	DefaultCacheEnabled = false
)

// IsValid returns true if the cache configuration is valid for caching.
func (c HealthCheckCacheConfig) IsValid() bool {
	return c.Enabled && c.TTL > 0
}

// metricsCache handles caching of health metrics with TTL support.
type metricsCache struct {
	data      *HealthMetrics
	timestamp time.Time
	mutex     sync.RWMutex
	config    HealthCheckCacheConfig
}

func newMetricsCache(config HealthCheckCacheConfig) *metricsCache {
	return &metricsCache{config: config}
}

// get retrieves cached metrics or fetches fresh ones using the provided fetcher.
func (c *metricsCache) get(ctx context.Context, fetcher func(context.Context) *HealthMetrics) *HealthMetrics {
	if !c.config.IsValid() {
		return fetcher(ctx)
	}

	c.mutex.RLock()
	if c.data != nil && !c.isExpired() {
		cached := c.data
		c.mutex.RUnlock()
		return cached
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check in case another goroutine refreshed the cache.
	if c.data != nil && !c.isExpired() {
		return c.data
	}

	metrics := fetcher(ctx)
	c.data = metrics
	c.timestamp = time.Now()
	return metrics
}

func (c *metricsCache) isExpired() bool {
	return time.Since(c.timestamp) >= c.config.TTL
}

// HealthCheckerOption defines functional options for DatabaseHealthChecker.
type HealthCheckerOption func(*DatabaseHealthChecker)

// WithCache enables caching with the specified configuration.
func WithCache(config HealthCheckCacheConfig) HealthCheckerOption {
	return func(hc *DatabaseHealthChecker) {
		hc.cache = newMetricsCache(config)
	}
}

// DatabaseHealthChecker checks database health with optional caching.
type DatabaseHealthChecker struct {
	pool  *pgxpool.Pool
	cache *metricsCache
}

// NewDatabaseHealthChecker creates a new health checker with optional caching.
func NewDatabaseHealthChecker(pool *pgxpool.Pool, opts ...HealthCheckerOption) *DatabaseHealthChecker {
	hc := &DatabaseHealthChecker{
		pool:  pool,
		cache: newMetricsCache(HealthCheckCacheConfig{TTL: DefaultCacheTTL, Enabled: DefaultCacheEnabled}),
	}

	for _, opt := range opts {
		opt(hc)
	}

	return hc
}

// IsHealthy checks if the database is healthy.
func (h *DatabaseHealthChecker) IsHealthy(ctx context.Context) bool {
	if h.pool == nil {
		return false
	}
	return h.pool.Ping(ctx) == nil
}

// GetMetrics returns database health metrics with optional caching.
func (h *DatabaseHealthChecker) GetMetrics(ctx context.Context) *HealthMetrics {
	return h.cache.get(ctx, h.collect)
}

// collect gathers fresh health metrics from the database.
func (h *DatabaseHealthChecker) collect(ctx context.Context) *HealthMetrics {
	if h.pool == nil {
		return nil
	}

	start := time.Now()
	// Response time is measured with a ping; the error is irrelevant here.
	_ = h.pool.Ping(ctx)
	responseTime := time.Since(start)

	stats := h.pool.Stat()

	return &HealthMetrics{
		TotalConnections:  stats.TotalConns(),
		ActiveConnections: stats.AcquiredConns(),
		IdleConnections:   stats.IdleConns(),
		ResponseTime:      responseTime,
	}
}

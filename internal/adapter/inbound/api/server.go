package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"embedqueue/internal/config"
	"embedqueue/internal/port/inbound"
)

// Server represents the HTTP API server.
type Server struct {
	config          *config.Config
	httpServer      *http.Server
	routeRegistry   *RouteRegistry
	listener        net.Listener
	isRunning       bool
	mu              sync.RWMutex
	middlewareCount int
}

// ServerBuilder provides a fluent interface for building Server instances.
type ServerBuilder struct {
	config        *config.Config
	healthService inbound.HealthService
	queueService  inbound.QueueService
	workerControl inbound.WorkerControl
	breakerCtl    inbound.CircuitBreakerControl
	metricsQuery  inbound.MetricsQueryService
	runtime       RuntimeCollector
	errorHandler  ErrorHandler
	middleware    []MiddlewareFunc
}

// NewServerBuilder creates a new ServerBuilder.
func NewServerBuilder(config *config.Config) *ServerBuilder {
	return &ServerBuilder{
		config:     config,
		middleware: make([]MiddlewareFunc, 0),
	}
}

// WithHealthService sets the health service.
func (b *ServerBuilder) WithHealthService(service inbound.HealthService) *ServerBuilder {
	b.healthService = service
	return b
}

// WithQueueService sets the queue service.
func (b *ServerBuilder) WithQueueService(service inbound.QueueService) *ServerBuilder {
	b.queueService = service
	return b
}

// WithWorkerControl sets the worker control service.
func (b *ServerBuilder) WithWorkerControl(control inbound.WorkerControl) *ServerBuilder {
	b.workerControl = control
	return b
}

// WithBreakerControl sets the circuit breaker control service.
func (b *ServerBuilder) WithBreakerControl(control inbound.CircuitBreakerControl) *ServerBuilder {
	b.breakerCtl = control
	return b
}

// WithMetricsQuery sets the metrics rollup query service.
func (b *ServerBuilder) WithMetricsQuery(service inbound.MetricsQueryService) *ServerBuilder {
	b.metricsQuery = service
	return b
}

// WithRuntimeCollector sets the optional runtime instrument collector.
func (b *ServerBuilder) WithRuntimeCollector(collector RuntimeCollector) *ServerBuilder {
	b.runtime = collector
	return b
}

// WithErrorHandler sets the error handler.
func (b *ServerBuilder) WithErrorHandler(handler ErrorHandler) *ServerBuilder {
	b.errorHandler = handler
	return b
}

// WithMiddleware adds middleware to the chain.
func (b *ServerBuilder) WithMiddleware(middleware MiddlewareFunc) *ServerBuilder {
	b.middleware = append(b.middleware, middleware)
	return b
}

// WithDefaultMiddleware adds the standard middleware chain. Individual pieces
// can be switched off through the api.enable_* config flags; unset flags
// leave them on.
func (b *ServerBuilder) WithDefaultMiddleware() *ServerBuilder {
	var apiCfg config.APIConfig
	if b.config != nil {
		apiCfg = b.config.API
	}

	if !flagEnabled(apiCfg.EnableDefaultMiddleware) {
		return b
	}

	b.WithMiddleware(NewRequestIDMiddleware())
	if flagEnabled(apiCfg.EnableLogging) {
		b.WithMiddleware(NewLoggingMiddleware())
	}
	if flagEnabled(apiCfg.EnableErrorHandling) {
		b.WithMiddleware(NewRecoveryMiddleware())
	}
	if flagEnabled(apiCfg.EnableSecurityHeaders) {
		b.WithMiddleware(NewSecurityHeadersMiddleware())
	}
	if flagEnabled(apiCfg.EnableCORS) {
		b.WithMiddleware(NewCORSMiddleware())
	}
	return b
}

func flagEnabled(flag *bool) bool {
	return flag == nil || *flag
}

// Build creates the Server instance.
func (b *ServerBuilder) Build() (*Server, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("server builder validation failed: %w", err)
	}

	if err := validateServerConfig(b.config); err != nil {
		return nil, err
	}

	server, err := b.buildServer()
	if err != nil {
		return nil, fmt.Errorf("failed to build server: %w", err)
	}

	return server, nil
}

// validate ensures all required dependencies are set.
func (b *ServerBuilder) validate() error {
	if b.config == nil {
		return errors.New("config is required")
	}
	if b.healthService == nil {
		return errors.New("health service is required")
	}
	if b.queueService == nil {
		return errors.New("queue service is required")
	}
	if b.workerControl == nil {
		return errors.New("worker control is required")
	}
	if b.breakerCtl == nil {
		return errors.New("circuit breaker control is required")
	}
	if b.metricsQuery == nil {
		return errors.New("metrics query service is required")
	}
	if b.errorHandler == nil {
		return errors.New("error handler is required")
	}
	return nil
}

// buildServer creates the Server with all configured components.
func (b *ServerBuilder) buildServer() (*Server, error) {
	registry := NewRouteRegistry()

	healthHandler := NewHealthHandler(b.healthService, b.errorHandler)
	queueHandler := NewQueueHandler(b.queueService, b.errorHandler)
	workerHandler := NewWorkerHandler(b.workerControl, b.errorHandler)
	breakerHandler := NewCircuitBreakerHandler(b.breakerCtl, b.errorHandler)
	metricsHandler := NewMetricsHandler(b.metricsQuery, b.runtime, b.errorHandler)

	registry.RegisterAPIRoutes(healthHandler, queueHandler, workerHandler, breakerHandler, metricsHandler)

	mux := registry.BuildServeMux()

	// Apply middleware in reverse so the first registered wraps outermost.
	var handler http.Handler = mux
	for i := len(b.middleware) - 1; i >= 0; i-- {
		handler = b.middleware[i](handler)
	}

	httpServer := b.createHTTPServer(handler)

	return &Server{
		config:          b.config,
		httpServer:      httpServer,
		routeRegistry:   registry,
		middlewareCount: len(b.middleware),
	}, nil
}

// createHTTPServer creates the underlying HTTP server.
func (b *ServerBuilder) createHTTPServer(handler http.Handler) *http.Server {
	host := b.config.API.Host
	if host == "" {
		host = "0.0.0.0"
	}

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%s", host, b.config.API.Port),
		Handler:      handler,
		ReadTimeout:  b.config.API.ReadTimeout,
		WriteTimeout: b.config.API.WriteTimeout,
	}
}

// NewServer creates a fully wired API server with the default middleware
// chain.
func NewServer(
	config *config.Config,
	healthService inbound.HealthService,
	queueService inbound.QueueService,
	workerControl inbound.WorkerControl,
	breakerControl inbound.CircuitBreakerControl,
	metricsQuery inbound.MetricsQueryService,
	runtime RuntimeCollector,
	errorHandler ErrorHandler,
) (*Server, error) {
	return NewServerBuilder(config).
		WithHealthService(healthService).
		WithQueueService(queueService).
		WithWorkerControl(workerControl).
		WithBreakerControl(breakerControl).
		WithMetricsQuery(metricsQuery).
		WithRuntimeCollector(runtime).
		WithErrorHandler(errorHandler).
		WithDefaultMiddleware().
		Build()
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return errors.New("server is already running")
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener

	// Update the address with the actual port, which matters for port 0.
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.httpServer.Addr = fmt.Sprintf("%s:%d", s.Host(), tcpAddr.Port)
	}

	s.isRunning = true

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}
	}()

	// Check if the context was canceled during startup.
	select {
	case <-ctx.Done():
		s.isRunning = false
		_ = listener.Close()
		return ctx.Err()
	default:
		return nil
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.isRunning = false

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Address returns the server's listening address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

// Host returns the server's host.
func (s *Server) Host() string {
	host := s.config.API.Host
	if host == "" {
		return "0.0.0.0"
	}
	return host
}

// Port returns the server's port.
func (s *Server) Port() string {
	return s.config.API.Port
}

// ReadTimeout returns the server's read timeout.
func (s *Server) ReadTimeout() time.Duration {
	return s.config.API.ReadTimeout
}

// WriteTimeout returns the server's write timeout.
func (s *Server) WriteTimeout() time.Duration {
	return s.config.API.WriteTimeout
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// HTTPServer returns the underlying HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MiddlewareCount returns the number of registered middleware.
func (s *Server) MiddlewareCount() int {
	return s.middlewareCount
}

// HasRoute checks if a specific route is registered.
func (s *Server) HasRoute(pattern string) bool {
	return s.routeRegistry.HasRoute(pattern)
}

// RouteCount returns the number of registered routes.
func (s *Server) RouteCount() int {
	return s.routeRegistry.RouteCount()
}

// validateServerConfig validates the server configuration.
func validateServerConfig(config *config.Config) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	if config.API.Port != "" && config.API.Port != "0" {
		if port, err := strconv.Atoi(config.API.Port); err != nil || port < 0 || port > 65535 {
			return errors.New("invalid port")
		}
	}

	if config.API.ReadTimeout < 0 {
		return errors.New("invalid read timeout")
	}
	if config.API.WriteTimeout < 0 {
		return errors.New("invalid write timeout")
	}

	return nil
}

package api

import (
	"fmt"
	"net/http"
	"strings"
)

// RouteRegistry manages HTTP route registration on a Go 1.22+ ServeMux,
// validating patterns and rejecting conflicts at registration time.
type RouteRegistry struct {
	routes   map[string]http.Handler
	patterns []string
	mux      *http.ServeMux
}

// NewRouteRegistry creates a new RouteRegistry.
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{
		routes:   make(map[string]http.Handler),
		patterns: make([]string, 0),
		mux:      http.NewServeMux(),
	}
}

// RegisterAPIRoutes registers the control surface routes with their handlers.
func (r *RouteRegistry) RegisterAPIRoutes(
	healthHandler *HealthHandler,
	queueHandler *QueueHandler,
	workerHandler *WorkerHandler,
	breakerHandler *CircuitBreakerHandler,
	metricsHandler *MetricsHandler,
) {
	r.mustRegister("GET /health", http.HandlerFunc(healthHandler.GetHealth))

	r.mustRegister("POST /queue/items", http.HandlerFunc(queueHandler.EnqueueItem))
	r.mustRegister("GET /queue/items/{id}", http.HandlerFunc(queueHandler.GetItem))
	r.mustRegister("GET /queue/status", http.HandlerFunc(queueHandler.GetQueueStatus))

	// Worker lifecycle actions are selected by the action query parameter,
	// matching the control contract the dashboards already speak.
	r.mustRegister("POST /workers", http.HandlerFunc(workerHandler.HandleAction))
	r.mustRegister("GET /workers", http.HandlerFunc(workerHandler.HandleStatus))

	r.mustRegister("GET /circuit-breaker", http.HandlerFunc(breakerHandler.GetStatus))
	r.mustRegister("POST /circuit-breaker/reset", http.HandlerFunc(breakerHandler.Reset))

	r.mustRegister("GET /metrics/rollups", http.HandlerFunc(metricsHandler.GetRollups))
	r.mustRegister("GET /metrics/runtime", http.HandlerFunc(metricsHandler.GetRuntime))
}

func (r *RouteRegistry) mustRegister(pattern string, handler http.Handler) {
	if err := r.RegisterRoute(pattern, handler); err != nil {
		panic(fmt.Errorf("failed to register route %s: %w", pattern, err))
	}
}

// RegisterRoute registers a single route with the given pattern and handler.
func (r *RouteRegistry) RegisterRoute(pattern string, handler http.Handler) error {
	if err := validatePattern(pattern); err != nil {
		return err
	}
	if err := r.checkRouteConflict(pattern); err != nil {
		return err
	}

	r.mux.Handle(pattern, handler)
	r.routes[pattern] = handler
	r.patterns = append(r.patterns, pattern)

	return nil
}

// BuildServeMux returns the configured ServeMux.
func (r *RouteRegistry) BuildServeMux() *http.ServeMux {
	return r.mux
}

// HasRoute checks if a route pattern is registered.
func (r *RouteRegistry) HasRoute(pattern string) bool {
	_, exists := r.routes[pattern]
	return exists
}

// RouteCount returns the number of registered routes.
func (r *RouteRegistry) RouteCount() int {
	return len(r.routes)
}

// GetPatterns returns all registered route patterns.
func (r *RouteRegistry) GetPatterns() []string {
	return r.patterns
}

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodPatch: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// validatePattern validates a "METHOD /path" ServeMux pattern.
func validatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("route pattern cannot be empty")
	}

	parts := strings.SplitN(pattern, " ", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid route pattern %q: must have format 'METHOD /path'", pattern)
	}

	method, path := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if !validMethods[strings.ToUpper(method)] {
		return fmt.Errorf("invalid HTTP method %q in pattern %q", method, pattern)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path %q in pattern %q must start with '/'", path, pattern)
	}
	if strings.Contains(path, "//") {
		return fmt.Errorf("path %q in pattern %q contains double slashes", path, pattern)
	}
	if strings.Contains(path, "{") {
		if err := validateParameterSyntax(path, pattern); err != nil {
			return err
		}
	}

	return nil
}

// validateParameterSyntax validates {name} path parameters: balanced braces,
// non-empty names, no duplicates.
func validateParameterSyntax(path, pattern string) error {
	seen := make(map[string]bool)

	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '{':
			closing := strings.Index(path[i+1:], "}")
			if closing == -1 {
				return fmt.Errorf("invalid parameter syntax in pattern %q: missing closing brace", pattern)
			}

			name := path[i+1 : i+1+closing]
			if !isValidParameterName(name) {
				return fmt.Errorf("invalid parameter name %q in pattern %q", name, pattern)
			}
			if seen[name] {
				return fmt.Errorf("duplicate parameter name %q in pattern %q", name, pattern)
			}
			seen[name] = true

			i += closing + 1
		case '}':
			return fmt.Errorf("invalid parameter syntax in pattern %q: unmatched closing brace", pattern)
		}
	}

	return nil
}

func isValidParameterName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// checkRouteConflict rejects a pattern that duplicates an existing route,
// including routes that differ only in parameter names.
func (r *RouteRegistry) checkRouteConflict(newPattern string) error {
	newParts := strings.SplitN(newPattern, " ", 2)
	if len(newParts) != 2 {
		return nil
	}
	newMethod, newPath := strings.TrimSpace(newParts[0]), strings.TrimSpace(newParts[1])

	for _, existing := range r.patterns {
		existingParts := strings.SplitN(existing, " ", 2)
		if len(existingParts) != 2 {
			continue
		}

		existingMethod, existingPath := strings.TrimSpace(existingParts[0]), strings.TrimSpace(existingParts[1])
		if !strings.EqualFold(newMethod, existingMethod) {
			continue
		}
		if normalizePath(newPath) == normalizePath(existingPath) {
			return fmt.Errorf("route conflict detected: pattern %q conflicts with existing pattern %q",
				newPattern, existing)
		}
	}

	return nil
}

// normalizePath replaces all parameters with a standard placeholder so
// structurally identical paths compare equal.
func normalizePath(path string) string {
	result := path
	searchPos := 0
	for {
		start := strings.Index(result[searchPos:], "{")
		if start == -1 {
			break
		}
		start += searchPos
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start
		result = result[:start] + "{param}" + result[end+1:]
		searchPos = start + len("{param}")
	}
	return result
}

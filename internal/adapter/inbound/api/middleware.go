package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"embedqueue/internal/adapter/inbound/api/netutil"
	"embedqueue/internal/application/common/slogger"
)

// MiddlewareFunc defines the middleware function signature.
type MiddlewareFunc func(http.Handler) http.Handler

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// NewRequestIDMiddleware assigns every request a correlation ID, reusing the
// caller's X-Request-ID when one is sent. The ID rides the request context so
// service-layer logs carry it too.
func NewRequestIDMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := slogger.WithCorrelationID(r.Context(), requestID)
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewLoggingMiddleware logs one structured line per completed request.
func NewLoggingMiddleware() MiddlewareFunc {
	logger := slogger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			fields := slogger.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      recorder.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   netutil.ClientIP(r),
				"user_agent":  r.Header.Get("User-Agent"),
			}
			if r.URL.RawQuery != "" {
				fields["query"] = r.URL.RawQuery
			}
			logger.Info(r.Context(), "http request completed", fields)
		})
	}
}

// NewRecoveryMiddleware converts handler panics into 500 responses instead of
// dropping the connection.
func NewRecoveryMiddleware() MiddlewareFunc {
	logger := slogger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error(r.Context(), "panic recovered in HTTP handler", slogger.Fields{
						"panic":  fmt.Sprintf("%v", rec),
						"method": r.Method,
						"path":   r.URL.Path,
					})

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"INTERNAL_ERROR","message":"An internal error occurred"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// NewSecurityHeadersMiddleware sets the baseline security headers. HSTS is
// only sent over TLS.
func NewSecurityHeadersMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewCORSMiddleware allows cross-origin dashboard access to the control
// surface.
func NewCORSMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

			allowedHeaders := "Content-Type, Authorization, X-Request-ID"
			if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
				allowedHeaders += ", " + requested
			}
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

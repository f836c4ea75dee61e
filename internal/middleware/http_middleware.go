package middleware

import (
	"errors"
	"net/http"

	"github.com/mehmetyiter/callguard/internal/breaker"
)

// HTTPMiddlewareConfig configures the HTTP middleware
type HTTPMiddlewareConfig struct {
	// Guard protecting the wrapped handler
	Guard breaker.Guard

	// OnRejected is called when the guard rejects the call, allowing
	// custom responses
	OnRejected func(w http.ResponseWriter, r *http.Request)

	// IsSuccessful determines if a response is considered successful
	// Defaults to: 2xx and 3xx status codes
	IsSuccessful func(status int) bool
}

// HTTPMiddleware wraps HTTP handlers with call-guard protection
type HTTPMiddleware struct {
	config HTTPMiddlewareConfig
}

// NewHTTPMiddleware creates a new HTTP middleware
func NewHTTPMiddleware(config HTTPMiddlewareConfig) *HTTPMiddleware {
	if config.OnRejected == nil {
		config.OnRejected = defaultRejectedHandler
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultIsSuccessful
	}

	return &HTTPMiddleware{config: config}
}

// Wrap wraps an http.Handler with call-guard protection
func (m *HTTPMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		err := m.config.Guard.Execute(func() error {
			next.ServeHTTP(wrapped, r)

			if !m.config.IsSuccessful(wrapped.statusCode) {
				return &httpError{statusCode: wrapped.statusCode}
			}
			return nil
		})

		if errors.Is(err, breaker.ErrBreakerOpen) || errors.Is(err, breaker.ErrPredictiveBlock) {
			m.config.OnRejected(w, r)
		}
	})
}

// WrapFunc wraps an http.HandlerFunc with call-guard protection
func (m *HTTPMiddleware) WrapFunc(next http.HandlerFunc) http.Handler {
	return m.Wrap(next)
}

// Handler returns a middleware handler for use with chi, gorilla/mux, etc.
func (m *HTTPMiddleware) Handler(next http.Handler) http.Handler {
	return m.Wrap(next)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// httpError represents an HTTP error response
type httpError struct {
	statusCode int
}

func (e *httpError) Error() string {
	return http.StatusText(e.statusCode)
}

// defaultRejectedHandler returns a 503 Service Unavailable
func defaultRejectedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "30")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"error":"service temporarily unavailable","retry_after":30}`))
}

// defaultIsSuccessful considers 2xx and 3xx status codes as successful
func defaultIsSuccessful(status int) bool {
	return status >= 200 && status < 400
}

// RoundTripper wraps http.RoundTripper with a call guard for outgoing requests
type RoundTripper struct {
	base  http.RoundTripper
	guard breaker.Guard
}

// NewRoundTripper creates a new guarded RoundTripper
func NewRoundTripper(base http.RoundTripper, guard breaker.Guard) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RoundTripper{
		base:  base,
		guard: guard,
	}
}

// RoundTrip implements http.RoundTripper. A 5xx response counts against
// the guard but is still returned with a nil error: the RoundTripper
// contract requires err == nil whenever a response was obtained, and
// http.Client discards the response otherwise.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	err := rt.guard.Execute(func() error {
		var err error
		resp, err = rt.base.RoundTrip(req)
		if err != nil {
			return err
		}

		// Consider 5xx as failures
		if resp.StatusCode >= 500 {
			return &httpError{statusCode: resp.StatusCode}
		}
		return nil
	})

	if resp != nil {
		return resp, nil
	}
	return nil, err
}

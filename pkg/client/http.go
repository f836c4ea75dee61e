package client

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mehmetyiter/callguard/internal/breaker"
)

// HTTPClient wraps http.Client with a predictive call guard obtained
// from a shared registry.
type HTTPClient struct {
	client *http.Client
	guard  breaker.Guard
}

// NewHTTPClient creates an HTTP client guarded by the named breaker,
// creating it in the registry if needed.
func NewHTTPClient(registry *breaker.Registry, name string, cfg breaker.PredictiveConfig) (*HTTPClient, error) {
	guard, err := registry.GetOrCreatePredictive(name, cfg)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		guard: guard,
	}, nil
}

// Get performs a GET request through the call guard
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// Post performs a POST request through the call guard
func (c *HTTPClient) Post(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, url, body)
}

// Do performs an HTTP request through the call guard. Server errors
// (5xx) count against the guard; the response is still returned.
func (c *HTTPClient) Do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	return breaker.Execute(c.guard, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, &serverError{status: resp.StatusCode}
		}
		return resp, nil
	})
}

type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return "server error: " + http.StatusText(e.status)
}

// State returns the current state of the call guard
func (c *HTTPClient) State() breaker.State {
	return c.guard.State()
}

// Stats returns the current guard counters
func (c *HTTPClient) Stats() breaker.Stats {
	return c.guard.Stats()
}

// Guard returns the underlying call guard
func (c *HTTPClient) Guard() breaker.Guard {
	return c.guard
}

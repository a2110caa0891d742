package tus

import (
	"context"
	"log/slog"
	"net/http"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. Authentication is
// expected to be handled by the client's transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers http.Header) Option {
	return func(c *Client) {
		if headers == nil {
			return
		}
		c.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(http.Header)
		}
		c.headers.Set(key, value)
	}
}

// WithStore sets where session URLs are remembered.
// Default: a new MemoryStore.
func WithStore(store Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithChunkSize sets the maximum body size of each PATCH request.
// Default: DefaultChunkSize.
func WithChunkSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithChunkSizer resolves the PATCH body size at the start of each Send,
// taking precedence over WithChunkSize when it returns a positive value.
func WithChunkSizer(fn func(ctx context.Context) (int64, error)) Option {
	return func(c *Client) {
		c.sizer = fn
	}
}

// WithLogger sets the logger for transfer events.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Package webclient abstracts page fetching behind a small interface so
// the monitor can swap a plain HTTP client for a rendering browser
// backend without caring which is in use.
package webclient

import (
	"context"
	"net/http"
	"time"
)

// WebClient executes requests against remote pages.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}

// Request describes one page fetch.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is the backend-agnostic fetch result.
type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int

	// FinalURL is the URL after following redirects (or client-side
	// navigation for the rendering backend).
	FinalURL string

	FetchedAt time.Time
}

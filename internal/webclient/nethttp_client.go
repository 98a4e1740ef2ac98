package webclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raysh454/vigil/internal/logging"
)

const defaultUserAgent = "vigil/1.0 (+https://github.com/raysh454/vigil)"

// maxBodySize caps how much of a response body is read. Policy pages
// are text; anything past this is not worth snapshotting.
const maxBodySize = 4 << 20

// NetHTTPClient is the net/http backed WebClient.
type NetHTTPClient struct {
	client *http.Client
	logger logging.Logger
}

// NewNetHTTPClient creates a nethttp backend. A nil httpClient gets a
// default with the given timeout.
func NewNetHTTPClient(timeout time.Duration, logger logging.Logger, httpClient *http.Client) *NetHTTPClient {
	if logger == nil {
		logger = logging.Nop{}
	}
	componentLogger := logger.With(logging.Field{Key: "backend", Value: "nethttp"})

	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &NetHTTPClient{
		client: httpClient,
		logger: componentLogger,
	}
}

// Do executes the request, following redirects, and returns the final
// response with the post-redirect URL recorded.
func (nhc *NetHTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	nhc.logger.Debug("sending http request",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "url", Value: req.URL})

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", defaultUserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := nhc.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		Request:    req,
		Headers:    resp.Header,
		Body:       body,
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		FetchedAt:  time.Now(),
	}, nil
}

// Close is a no-op for the nethttp backend.
func (nhc *NetHTTPClient) Close() error {
	return nil
}

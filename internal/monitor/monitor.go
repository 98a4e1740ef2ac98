// Package monitor fetches tracked URLs and turns responses into the
// metadata snapshots the detector consumes. It owns everything
// HTTP-and-HTML shaped; the detector never sees a network.
package monitor

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/model"
	"github.com/raysh454/vigil/internal/webclient"
)

// Monitor collects per-URL metadata through a WebClient backend.
type Monitor struct {
	wc     webclient.WebClient
	logger logging.Logger
}

// New creates a Monitor on top of the given webclient.
func New(wc webclient.WebClient, logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Monitor{
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "monitor"}),
	}
}

// Check fetches url and builds its metadata snapshot. A failed fetch
// yields a snapshot with Error set rather than an error return; the
// caller decides whether such observations reach the detector.
func (m *Monitor) Check(ctx context.Context, url string) *model.URLMetadata {
	start := time.Now()

	resp, err := m.wc.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: url})
	if err != nil {
		m.logger.Warn("fetch failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return &model.URLMetadata{
			URL:       url,
			Timestamp: time.Now(),
			Headers:   map[string]string{},
			FinalURL:  url,
			Error:     err.Error(),
		}
	}

	meta := &model.URLMetadata{
		URL:           url,
		Timestamp:     resp.FetchedAt,
		StatusCode:    resp.StatusCode,
		Headers:       flattenHeaders(resp.Headers),
		FinalURL:      resp.FinalURL,
		ContentLength: len(resp.Body),
		ResponseTime:  time.Since(start).Seconds(),
	}

	if html := m.parseIfHTML(url, resp); html != nil {
		meta.HTMLMetadata = html
	}

	m.logger.Debug("metadata collected",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "status", Value: meta.StatusCode},
		logging.Field{Key: "duration", Value: meta.ResponseTime})

	return meta
}

// parseIfHTML parses the body when the response looks like a
// successfully served HTML document. Non-HTML and error responses get
// no HTML metadata so the detector does not diff document fields
// against a void.
func (m *Monitor) parseIfHTML(url string, resp *webclient.Response) *model.HTMLMetadata {
	if resp.StatusCode != http.StatusOK {
		m.logger.Debug("skipping HTML parse for non-200 response",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return nil
	}

	contentType := strings.ToLower(resp.Headers.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		m.logger.Debug("skipping HTML parse for non-HTML content type",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "content_type", Value: contentType})
		return nil
	}

	html := ParseHTML(url, resp.FinalURL, resp.Body, contentType)
	if html.Error != "" {
		m.logger.Warn("HTML parse failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: html.Error})
	}
	return html
}

// flattenHeaders converts an http.Header into the single-valued
// lowercase map stored in snapshots. Multi-valued headers keep their
// first value.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[strings.ToLower(k)] = vs[0]
		}
	}
	return out
}

// Close releases the underlying webclient.
func (m *Monitor) Close() error {
	return m.wc.Close()
}

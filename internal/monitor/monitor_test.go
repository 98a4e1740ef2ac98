package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raysh454/vigil/internal/webclient"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	m := New(webclient.NewNetHTTPClient(5*time.Second, nil, nil), nil)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCheck_BuildsSnapshot(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"abc123"`)
		w.Write([]byte(`<html><head><title>Policy</title></head><body><p>terms and conditions</p></body></html>`))
	}))
	defer server.Close()

	m := newTestMonitor(t)
	meta := m.Check(context.Background(), server.URL)

	if meta.Error != "" {
		t.Fatalf("unexpected error: %s", meta.Error)
	}
	if meta.StatusCode != http.StatusOK {
		t.Errorf("status = %d", meta.StatusCode)
	}
	if meta.Headers["etag"] != `"abc123"` {
		t.Errorf("expected lowercase etag header, got %v", meta.Headers)
	}
	if meta.ContentLength == 0 {
		t.Error("expected nonzero content length")
	}
	if meta.ResponseTime <= 0 {
		t.Error("expected positive response time")
	}
	if meta.HTMLMetadata == nil {
		t.Fatal("expected HTML metadata for text/html response")
	}
	if meta.HTMLMetadata.Title != "Policy" {
		t.Errorf("title = %q", meta.HTMLMetadata.Title)
	}
}

func TestCheck_FollowsRedirects(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Moved</title></head></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	m := newTestMonitor(t)
	meta := m.Check(context.Background(), server.URL+"/old")

	if meta.FinalURL != server.URL+"/new" {
		t.Errorf("final URL = %q", meta.FinalURL)
	}
	if meta.URL != server.URL+"/old" {
		t.Errorf("configured URL = %q", meta.URL)
	}
}

func TestCheck_SkipsHTMLForNon200(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<html><head><title>404</title></head></html>`))
	}))
	defer server.Close()

	m := newTestMonitor(t)
	meta := m.Check(context.Background(), server.URL)

	if meta.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", meta.StatusCode)
	}
	if meta.HTMLMetadata != nil {
		t.Error("expected no HTML metadata for non-200 response")
	}
}

func TestCheck_SkipsHTMLForNonHTMLContentType(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version": "1.0"}`))
	}))
	defer server.Close()

	m := newTestMonitor(t)
	meta := m.Check(context.Background(), server.URL)

	if meta.HTMLMetadata != nil {
		t.Error("expected no HTML metadata for JSON response")
	}
	if meta.ContentLength == 0 {
		t.Error("body still counts toward content length")
	}
}

func TestCheck_FetchFailureRecordsError(t *testing.T) {
	t.Parallel()
	m := newTestMonitor(t)
	meta := m.Check(context.Background(), "http://127.0.0.1:1/unreachable")

	if meta.Error == "" {
		t.Fatal("expected error for unreachable host")
	}
	if meta.StatusCode != 0 {
		t.Errorf("status = %d, want 0", meta.StatusCode)
	}
	if meta.FinalURL != "http://127.0.0.1:1/unreachable" {
		t.Errorf("final URL = %q", meta.FinalURL)
	}
	if meta.Timestamp.IsZero() {
		t.Error("expected timestamp on failed fetch")
	}
}

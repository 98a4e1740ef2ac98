package detector_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raysh454/vigil/internal/detector"
	"github.com/raysh454/vigil/internal/model"
)

// ─── Normalize ─────────────────────────────────────────────────────────

func TestNormalize_EquivalentFormsShareOneKey(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"HTTP://Example.com:80/path/",
		"http://example.com/path",
		"http://example.com/path/",
	}
	want := "http://example.com/path"
	for _, in := range inputs {
		got, err := detector.Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_StripsDefaultHTTPSPort(t *testing.T) {
	t.Parallel()
	got, err := detector.Normalize("https://example.com:443/terms")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.com/terms" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_KeepsNonDefaultPort(t *testing.T) {
	t.Parallel()
	got, err := detector.Normalize("http://example.com:8080/x")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://example.com:8080/x" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_DropsFragmentKeepsQuery(t *testing.T) {
	t.Parallel()
	got, err := detector.Normalize("https://example.com/p?b=2&a=1#section")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.com/p?b=2&a=1" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_KeepsRootSlash(t *testing.T) {
	t.Parallel()
	got, err := detector.Normalize("https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.com/" {
		t.Errorf("got %q", got)
	}
}

func TestNormalize_EmptyIsError(t *testing.T) {
	t.Parallel()
	if _, err := detector.Normalize("   "); err == nil {
		t.Error("expected error for blank input")
	}
}

// ─── Resolve ───────────────────────────────────────────────────────────

func TestResolve_NormalizedMatch(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	store.Put("https://example.com/policy", basicMeta("https://example.com/policy"))

	if got := store.Resolve("HTTPS://EXAMPLE.COM/policy/"); got == nil {
		t.Fatal("expected normalized form to resolve")
	}
}

func TestResolve_SchemeSwapVariant(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	store.Put("http://example.com/policy", basicMeta("http://example.com/policy"))

	if got := store.Resolve("https://example.com/policy"); got == nil {
		t.Fatal("expected https variant to resolve to http entry")
	}
}

func TestResolve_WWWToggleVariant(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	store.Put("https://www.example.com/policy", basicMeta("https://www.example.com/policy"))

	if got := store.Resolve("https://example.com/policy"); got == nil {
		t.Fatal("expected bare host to resolve to www entry")
	}
}

func TestResolve_FallbackScanOnFinalURL(t *testing.T) {
	t.Parallel()

	// Histories written by older versions were keyed by the configured
	// URL, not the final URL. Those entries are only reachable through
	// the fallback scan.
	path := filepath.Join(t.TempDir(), "history.json")
	doc := `{
		"metadata_history": {
			"https://old.example.com/policy": {
				"url": "https://old.example.com/policy",
				"timestamp": "2026-05-01T12:00:00Z",
				"status_code": 200,
				"headers": {},
				"final_url": "https://docs.example.com/policy",
				"content_length": 100,
				"response_time": 0.1
			}
		},
		"policy_alerts": []
	}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	store := detector.NewSnapshotStore(path, nil)
	if got := store.Resolve("https://docs.example.com/policy/"); got == nil {
		t.Fatal("expected final_url scan to resolve")
	}
}

func TestResolve_FallbackScanOnCanonicalURL(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	meta := basicMeta("https://example.com/p?utm=1")
	meta.HTMLMetadata = &model.HTMLMetadata{CanonicalURL: "https://example.com/canonical"}
	store.Put("https://example.com/p?utm=1", meta)

	if got := store.Resolve("https://example.com/canonical"); got == nil {
		t.Fatal("expected canonical_url scan to resolve")
	}
}

func TestResolve_UnknownReturnsNil(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	if got := store.Resolve("https://nowhere.example.com/"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

// ─── Put ───────────────────────────────────────────────────────────────

func TestPut_LowercasesHeaderKeys(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	meta := basicMeta("https://example.com/p")
	meta.Headers = map[string]string{"Last-Modified": "yesterday", "ETag": "abc"}
	store.Put("https://example.com/p", meta)

	stored := store.Resolve("https://example.com/p")
	if stored == nil {
		t.Fatal("expected stored snapshot")
	}
	if stored.Headers["last-modified"] != "yesterday" {
		t.Errorf("expected lowercase last-modified key, headers=%v", stored.Headers)
	}
	if stored.Headers["etag"] != "abc" {
		t.Errorf("expected lowercase etag key, headers=%v", stored.Headers)
	}
}

func TestPut_KeysByFinalURL(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	meta := basicMeta("http://example.com/p")
	meta.FinalURL = "https://example.com/p/"
	store.Put("http://example.com/p", meta)

	if store.Get("https://example.com/p") == nil {
		t.Errorf("expected key from normalized final URL, have %v", store.TrackedURLs())
	}
}

func TestPut_OverwritesExistingSnapshot(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	first := basicMeta("https://example.com/p")
	first.ContentLength = 100
	store.Put("https://example.com/p", first)

	second := basicMeta("https://example.com/p")
	second.ContentLength = 999
	store.Put("https://example.com/p", second)

	if store.Len() != 1 {
		t.Fatalf("expected one entry, got %d", store.Len())
	}
	if got := store.Resolve("https://example.com/p"); got.ContentLength != 999 {
		t.Errorf("expected overwrite, got content length %d", got.ContentLength)
	}
}

// ─── Load / Save ───────────────────────────────────────────────────────

func TestLoad_CorruptFileStartsFresh(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	store := detector.NewSnapshotStore(path, nil)
	if store.Len() != 0 {
		t.Errorf("expected empty store from corrupt file, got %d entries", store.Len())
	}
}

func TestSave_RoundTrips(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "history.json")

	store := detector.NewSnapshotStore(path, nil)
	meta := htmlMeta("https://example.com/policy", "Usage Policy", 500, []string{"v1.0"})
	store.Put("https://example.com/policy", meta)
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := detector.NewSnapshotStore(path, nil)
	got := reloaded.Resolve("https://example.com/policy")
	if got == nil {
		t.Fatal("expected snapshot after reload")
	}
	if got.HTMLMetadata == nil || got.HTMLMetadata.Title != "Usage Policy" {
		t.Errorf("unexpected reloaded snapshot: %+v", got)
	}
	if !got.Timestamp.Equal(meta.Timestamp) {
		t.Errorf("timestamp did not round-trip: %v", got.Timestamp)
	}
}

func TestSave_WritesISO8601Timestamps(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")

	store := detector.NewSnapshotStore(path, nil)
	store.Put("https://example.com/p", basicMeta("https://example.com/p"))
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := `"2026-05-01T12:00:00Z"`; !strings.Contains(string(data), want) {
		t.Errorf("expected ISO-8601 timestamp %s in file", want)
	}
	if !strings.Contains(string(data), `"metadata_history"`) {
		t.Error("expected metadata_history top-level key")
	}
	if !strings.Contains(string(data), `"policy_alerts"`) {
		t.Error("expected policy_alerts top-level key")
	}
}

// ─── IsFirstRun ────────────────────────────────────────────────────────

func TestIsFirstRun_MissingFile(t *testing.T) {
	t.Parallel()
	store := detector.NewSnapshotStore(filepath.Join(t.TempDir(), "nope.json"), nil)
	if !store.IsFirstRun() {
		t.Error("expected first run for missing file")
	}
}

func TestIsFirstRun_SentinelShapes(t *testing.T) {
	t.Parallel()
	for _, content := range []string{"", "{}", "null", `{"metadata_history": {}}`} {
		path := filepath.Join(t.TempDir(), "history.json")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		store := detector.NewSnapshotStore(path, nil)
		if !store.IsFirstRun() {
			t.Errorf("expected first run for content %q", content)
		}
	}
}

func TestIsFirstRun_FalseAfterSave(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	store := detector.NewSnapshotStore(path, nil)
	store.Put("https://example.com/p", basicMeta("https://example.com/p"))
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}
	if store.IsFirstRun() {
		t.Error("expected first run to be false after saving history")
	}
}

package detector

import (
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/idna"

	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/model"
)

// ErrEmptyURL is returned by Normalize for blank input.
var ErrEmptyURL = errors.New("empty url")

// historyDoc is the on-disk layout of the history file.
type historyDoc struct {
	MetadataHistory map[string]*model.URLMetadata `json:"metadata_history"`
	PolicyAlerts    []model.StealthAlert          `json:"policy_alerts"`
}

// SnapshotStore keeps the last-known snapshot per tracked URL, backed by
// a single JSON document. Loading is resilient: a missing or corrupt
// file degrades to an empty store instead of failing, so one bad history
// file never halts monitoring.
//
// The store is not safe for concurrent use; the detection path is the
// single writer (see Detector).
type SnapshotStore struct {
	path   string
	logger logging.Logger
	doc    historyDoc
}

// NewSnapshotStore creates a store backed by the JSON document at path
// and loads any existing history.
func NewSnapshotStore(path string, logger logging.Logger) *SnapshotStore {
	if logger == nil {
		logger = logging.Nop{}
	}
	s := &SnapshotStore{path: path, logger: logger}
	s.load()
	return s
}

func (s *SnapshotStore) load() {
	s.doc = historyDoc{
		MetadataHistory: map[string]*model.URLMetadata{},
		PolicyAlerts:    []model.StealthAlert{},
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading history file, starting fresh",
				logging.Field{Key: "path", Value: s.path},
				logging.Field{Key: "error", Value: err.Error()})
		}
		return
	}

	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("decoding history file, starting fresh",
			logging.Field{Key: "path", Value: s.path},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	if doc.MetadataHistory == nil {
		doc.MetadataHistory = map[string]*model.URLMetadata{}
	}
	if doc.PolicyAlerts == nil {
		doc.PolicyAlerts = []model.StealthAlert{}
	}
	s.doc = doc
}

// Save writes the whole store back to disk using a temp file + rename so
// the history file is never left half-written. Durability is
// best-effort: the error is logged here and also returned so callers can
// count it, but a failed save must not stop the cycle.
func (s *SnapshotStore) Save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		s.logger.Error("marshalling history", logging.Field{Key: "error", Value: err.Error()})
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("creating history directory",
			logging.Field{Key: "path", Value: dir},
			logging.Field{Key: "error", Value: err.Error()})
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-history-*")
	if err != nil {
		s.logger.Error("creating temp history file", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		s.logger.Error("writing history file", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	if err := tmp.Sync(); err != nil {
		s.logger.Error("syncing history file", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	if err := tmp.Close(); err != nil {
		s.logger.Error("closing history file", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	tmp = nil

	if err := os.Rename(tmpPath, s.path); err != nil {
		s.logger.Error("renaming history file", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	return nil
}

// Normalize produces the canonical history key for a URL: lowercase
// scheme and host (IDN hosts converted to punycode), default ports
// stripped, one trailing slash stripped (root "/" kept), fragment
// dropped. The query string is left intact.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil && puny != "" {
		host = puny
	}
	port := u.Port()
	if port == "" || (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		u.Host = host
	} else {
		u.Host = net.JoinHostPort(host, port)
	}

	if p := u.Path; p != "/" && strings.HasSuffix(p, "/") {
		u.Path = strings.TrimSuffix(p, "/")
		if u.RawPath != "" {
			u.RawPath = strings.TrimSuffix(u.RawPath, "/")
		}
	}

	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// variants returns the alternate keys to try when resolving a URL:
// normalized form, scheme swapped (http<->https), and the www prefix
// toggled. A variant that fails to parse simply contributes nothing.
func variants(raw string) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(v string, err error) {
		if err != nil || v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(Normalize(raw))

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return out
	}

	swapped := *u
	if strings.EqualFold(u.Scheme, "https") {
		swapped.Scheme = "http"
	} else {
		swapped.Scheme = "https"
	}
	add(Normalize(swapped.String()))

	toggled := *u
	if strings.HasPrefix(strings.ToLower(u.Host), "www.") {
		toggled.Host = u.Host[4:]
	} else {
		toggled.Host = "www." + u.Host
	}
	add(Normalize(toggled.String()))

	return out
}

// Resolve finds the stored snapshot for a URL, trying progressively
// looser matches: exact key, normalized key, generated variants, and
// finally a scan over every stored snapshot comparing its recorded
// final or canonical URL. The scan exists because the same logical
// resource can arrive under different literal URLs across cycles
// (redirect target moved, protocol upgraded); losing identity there
// would make such URLs look new every cycle.
//
// When several stored snapshots share a final URL the scan returns the
// first hit in map iteration order.
func (s *SnapshotStore) Resolve(rawURL string) *model.URLMetadata {
	history := s.doc.MetadataHistory

	if m, ok := history[rawURL]; ok {
		return m
	}

	norm, normErr := Normalize(rawURL)
	if normErr == nil {
		if m, ok := history[norm]; ok {
			return m
		}
	}

	for _, v := range variants(rawURL) {
		if m, ok := history[v]; ok {
			return m
		}
	}

	for _, entry := range history {
		if final := entry.FinalURL; final != "" {
			if final == rawURL {
				return entry
			}
			if fn, err := Normalize(final); err == nil && normErr == nil && fn == norm {
				return entry
			}
		}
		if entry.HTMLMetadata == nil || entry.HTMLMetadata.CanonicalURL == "" {
			continue
		}
		canon := entry.HTMLMetadata.CanonicalURL
		if canon == rawURL {
			return entry
		}
		if cn, err := Normalize(canon); err == nil && normErr == nil && cn == norm {
			return entry
		}
	}

	return nil
}

// Put stores meta as the current snapshot, overwriting any previous one
// under the same normalized key. The key is derived from the final URL
// when present so redirected URLs collapse onto one entry; header keys
// are lowercased on the way in.
func (s *SnapshotStore) Put(rawURL string, meta *model.URLMetadata) {
	keySource := meta.FinalURL
	if keySource == "" {
		keySource = meta.URL
	}
	key, err := Normalize(keySource)
	if err != nil {
		key = rawURL
	}

	stored := *meta
	stored.Headers = model.NormalizeHeaderMap(meta.Headers)
	s.doc.MetadataHistory[key] = &stored
}

// RecordAlerts appends stealth alerts to the persisted alert history.
// They are written out on the next Save.
func (s *SnapshotStore) RecordAlerts(alerts []model.StealthAlert) {
	s.doc.PolicyAlerts = append(s.doc.PolicyAlerts, alerts...)
}

// Alerts returns every stealth alert recorded so far.
func (s *SnapshotStore) Alerts() []model.StealthAlert {
	return s.doc.PolicyAlerts
}

// Get returns the snapshot stored under the exact key, or nil.
func (s *SnapshotStore) Get(key string) *model.URLMetadata {
	return s.doc.MetadataHistory[key]
}

// TrackedURLs lists every stored history key.
func (s *SnapshotStore) TrackedURLs() []string {
	keys := make([]string, 0, len(s.doc.MetadataHistory))
	for k := range s.doc.MetadataHistory {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of tracked URLs.
func (s *SnapshotStore) Len() int {
	return len(s.doc.MetadataHistory)
}

// IsFirstRun reports whether the backing file is absent, unreadable,
// or holds no history yet.
func (s *SnapshotStore) IsFirstRun() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return true
	}
	content := strings.TrimSpace(string(data))
	if content == "" || content == "{}" || content == "null" {
		return true
	}
	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return true
	}
	return len(doc.MetadataHistory) == 0
}

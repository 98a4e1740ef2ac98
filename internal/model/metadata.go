package model

import (
	"encoding/json"
	"strings"
	"time"
)

// URLMetadata is the observation the fetch layer produces for one URL
// check. It is immutable once handed to the detector and doubles as the
// persisted snapshot shape: the same struct is serialized into the
// history file, so there is exactly one (de)serialization boundary.
type URLMetadata struct {
	// URL is the configured URL that was requested.
	URL string `json:"url"`

	// Timestamp is when the fetch completed.
	Timestamp time.Time `json:"timestamp"`

	// StatusCode is the final HTTP status (0 when the request failed).
	StatusCode int `json:"status_code"`

	// Headers holds response headers. Keys are lowercase; use
	// NormalizeHeaderMap when building from an http.Header-like source.
	Headers map[string]string `json:"headers"`

	// FinalURL is the URL after following redirects.
	FinalURL string `json:"final_url"`

	// ContentLength is the raw body size in bytes.
	ContentLength int `json:"content_length"`

	// ResponseTime is the fetch latency in seconds.
	ResponseTime float64 `json:"response_time"`

	// Error is set when the fetch failed; the detector never sees these.
	Error string `json:"error,omitempty"`

	// HTMLMetadata is present when the body was parseable HTML.
	HTMLMetadata *HTMLMetadata `json:"html_metadata,omitempty"`
}

// HTMLMetadata is everything extracted from a parsed HTML document.
type HTMLMetadata struct {
	URL             string            `json:"url"`
	Title           string            `json:"title"`
	MetaDescription string            `json:"meta_description"`
	CanonicalURL    string            `json:"canonical_url"`
	OGMetadata      map[string]string `json:"og_metadata"`
	TwitterMetadata map[string]string `json:"twitter_metadata"`
	OtherMetadata   map[string]string `json:"other_metadata"`
	StructuredData  StructuredData    `json:"structured_data"`
	ImportantLinks  PageLinks         `json:"important_links"`
	ContentAnalysis ContentAnalysis   `json:"content_analysis"`
	Language        string            `json:"language"`
	Charset         string            `json:"charset"`
	HasForms        bool              `json:"has_forms"`
	HasComments     bool              `json:"has_comments"`

	// Error is set when the body could not be parsed as HTML.
	Error string `json:"error,omitempty"`
}

// StructuredData summarizes machine-readable markup found on the page.
type StructuredData struct {
	// JSONLD holds each ld+json script payload verbatim.
	JSONLD []json.RawMessage `json:"json_ld"`

	Microdata MicrodataSummary `json:"microdata"`
}

// MicrodataSummary is a shallow census of itemtype markup.
type MicrodataSummary struct {
	ItemCount   int      `json:"item_count"`
	SampleTypes []string `json:"sample_types,omitempty"`
}

// PageLinks categorizes anchors found on the page.
type PageLinks struct {
	Internal []LinkInfo `json:"internal"`
	External []LinkInfo `json:"external"`
	Social   []LinkInfo `json:"social"`
}

// LinkInfo is one extracted anchor. Text and Title are truncated by the
// parser to keep snapshots small.
type LinkInfo struct {
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
}

// ContentAnalysis carries the text-level signals the policy differ and
// stealth heuristics run on.
type ContentAnalysis struct {
	WordCount        int            `json:"word_count"`
	TextPreview      string         `json:"text_preview,omitempty"`
	HeadingStructure map[string]int `json:"heading_structure"`
	ImageCount       int            `json:"image_count"`
	ParagraphCount   int            `json:"paragraph_count"`
	ListCount        int            `json:"list_count"`
	HasMainContent   bool           `json:"has_main_content"`

	// KeywordCounts maps a policy category (privacy, terms, liability,
	// termination, rights, governance) to the number of keyword hits.
	KeywordCounts map[string]int `json:"keyword_counts"`

	// VersionIndicators are version strings scraped from the visible
	// text ("v2.1", "revision 3", ...). Compared as sets.
	VersionIndicators []string `json:"version_indicators"`

	// DateIndicators are "last updated" style date strings.
	DateIndicators []string `json:"date_indicators"`

	HasLegalLanguage bool `json:"has_legal_language"`
}

// Header returns the named header, looked up case-insensitively. Missing
// headers yield the empty string.
func (m *URLMetadata) Header(name string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[strings.ToLower(name)]
}

// NormalizeHeaderMap returns a copy of headers with lowercase keys so
// comparisons across snapshots never trip on header-name casing.
func NormalizeHeaderMap(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}

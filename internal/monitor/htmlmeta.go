package monitor

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/raysh454/vigil/internal/model"
)

// policyKeywords maps each tracked category to the phrases counted for
// it. Counts are substring matches over the lowercased page text.
var policyKeywords = map[string][]string{
	"privacy":     {"privacy", "data protection", "personal data", "gdpr", "ccpa"},
	"terms":       {"terms", "conditions", "agreement", "contract"},
	"liability":   {"liability", "warranty", "guarantee", "responsible", "damages"},
	"termination": {"terminate", "suspend", "close account", "cancel", "breach"},
	"rights":      {"rights", "permission", "license", "intellectual property", "copyright"},
	"governance":  {"governance", "compliance", "regulation", "policy", "guidelines"},
}

var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)version\s*:?\s*([\d.]+)`),
	regexp.MustCompile(`(?i)v\.?\s*(\d+\.\d+)`),
	regexp.MustCompile(`(?i)revision\s*:?\s*([\d.]+)`),
	regexp.MustCompile(`(?i)ver\.?\s*(\d+)`),
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)last\s+(?:updated|modified|revised)\s*:?\s*([^<.]+)`),
	regexp.MustCompile(`(?i)updated\s+on\s*:?\s*([^<.]+)`),
	regexp.MustCompile(`(?i)effective\s+as\s+of\s*:?\s*([^<.]+)`),
	regexp.MustCompile(`(?i)revision\s+date\s*:?\s*([^<.]+)`),
	regexp.MustCompile(`(?i)date\s*:?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
}

// namedMetaFields are the additional meta tags worth snapshotting.
var namedMetaFields = []string{
	"keywords", "author", "viewport", "robots", "generator",
	"theme-color", "application-name", "version",
}

var socialDomains = []string{
	"facebook.com", "twitter.com", "x.com", "linkedin.com", "instagram.com", "youtube.com",
}

const (
	linkTextLimit    = 100
	textPreviewLimit = 500
	microdataSamples = 5
)

// ParseHTML extracts document metadata from an HTML body. It never
// fails hard: an unparseable body yields a metadata value with Error
// set.
func ParseHTML(pageURL, finalURL string, body []byte, contentType string) *model.HTMLMetadata {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &model.HTMLMetadata{
			URL:   pageURL,
			Error: "HTML parsing error: " + err.Error(),
		}
	}

	meta := &model.HTMLMetadata{
		URL:             pageURL,
		Title:           strings.TrimSpace(doc.Find("title").First().Text()),
		MetaDescription: strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", "")),
		CanonicalURL:    doc.Find(`link[rel="canonical"]`).First().AttrOr("href", ""),
		OGMetadata:      extractPrefixedMeta(doc, "property", "og:"),
		TwitterMetadata: extractPrefixedMeta(doc, "name", "twitter:"),
		OtherMetadata:   extractOtherMeta(doc),
		StructuredData:  extractStructuredData(doc),
		ImportantLinks:  extractLinks(doc, finalURL),
		Language:        doc.Find("html").AttrOr("lang", ""),
		Charset:         detectCharset(doc, contentType),
		HasForms:        doc.Find("form").Length() > 0,
		HasComments:     hasComments(doc),
	}

	// Content analysis mutates the document (boilerplate removal), so
	// it runs after every other extraction.
	meta.ContentAnalysis = analyzeContent(doc)

	return meta
}

// extractPrefixedMeta collects meta tags whose attr value starts with
// prefix, keyed by the remainder ("og:title" -> "title").
func extractPrefixedMeta(doc *goquery.Document, attr, prefix string) map[string]string {
	out := map[string]string{}
	doc.Find("meta["+attr+"]").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(s.AttrOr(attr, ""))
		content := s.AttrOr("content", "")
		if content == "" || !strings.HasPrefix(name, prefix) {
			return
		}
		out[strings.TrimPrefix(name, prefix)] = content
	})
	return out
}

func extractOtherMeta(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	for _, field := range namedMetaFields {
		if content := doc.Find(`meta[name="`+field+`"]`).First().AttrOr("content", ""); content != "" {
			out[field] = content
		}
	}
	doc.Find("meta[http-equiv]").Each(func(_ int, s *goquery.Selection) {
		equiv := strings.ToLower(s.AttrOr("http-equiv", ""))
		content := s.AttrOr("content", "")
		if equiv != "" && content != "" {
			out["http_equiv_"+equiv] = content
		}
	})
	return out
}

func extractStructuredData(doc *goquery.Document) model.StructuredData {
	sd := model.StructuredData{JSONLD: []json.RawMessage{}}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		payload := strings.TrimSpace(s.Text())
		if payload == "" || !json.Valid([]byte(payload)) {
			return
		}
		sd.JSONLD = append(sd.JSONLD, json.RawMessage(payload))
	})

	seen := map[string]struct{}{}
	doc.Find("[itemtype]").Each(func(_ int, s *goquery.Selection) {
		sd.Microdata.ItemCount++
		itemType := s.AttrOr("itemtype", "")
		if itemType == "" || len(sd.Microdata.SampleTypes) >= microdataSamples {
			return
		}
		if _, ok := seen[itemType]; ok {
			return
		}
		seen[itemType] = struct{}{}
		sd.Microdata.SampleTypes = append(sd.Microdata.SampleTypes, itemType)
	})

	return sd
}

func extractLinks(doc *goquery.Document, baseURL string) model.PageLinks {
	links := model.PageLinks{
		Internal: []model.LinkInfo{},
		External: []model.LinkInfo{},
		Social:   []model.LinkInfo{},
	}

	var baseHost string
	if u, err := url.Parse(baseURL); err == nil {
		baseHost = u.Host
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if href == "" || strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return
		}

		info := model.LinkInfo{
			URL:   href,
			Text:  truncate(strings.TrimSpace(s.Text()), linkTextLimit),
			Title: truncate(s.AttrOr("title", ""), linkTextLimit),
		}

		switch {
		case strings.HasPrefix(href, "/") || (baseHost != "" && strings.Contains(href, baseHost)):
			links.Internal = append(links.Internal, info)
		case isSocialLink(href):
			links.Social = append(links.Social, info)
		default:
			links.External = append(links.External, info)
		}
	})

	return links
}

func isSocialLink(href string) bool {
	for _, domain := range socialDomains {
		if strings.Contains(href, domain) {
			return true
		}
	}
	return false
}

// analyzeContent strips boilerplate elements and derives the text
// signals the policy differ runs on.
func analyzeContent(doc *goquery.Document) model.ContentAnalysis {
	headings := map[string]int{}
	for _, level := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
		headings[level] = doc.Find(level).Length()
	}

	analysis := model.ContentAnalysis{
		HeadingStructure: headings,
		ImageCount:       doc.Find("img").Length(),
		ParagraphCount:   doc.Find("p").Length(),
		ListCount:        doc.Find("ul, ol").Length(),
		HasMainContent:   hasMainContent(doc),
	}

	doc.Find("script, style, nav, footer, header").Remove()

	words := strings.Fields(doc.Text())
	analysis.WordCount = len(words)
	text := strings.Join(words, " ")
	analysis.TextPreview = previewOf(text)

	lower := strings.ToLower(text)
	analysis.KeywordCounts = map[string]int{}
	for category, keywords := range policyKeywords {
		count := 0
		for _, kw := range keywords {
			count += strings.Count(lower, kw)
		}
		analysis.KeywordCounts[category] = count
	}

	analysis.VersionIndicators = findMatches(text, versionPatterns)
	analysis.DateIndicators = findMatches(text, datePatterns)
	for _, count := range analysis.KeywordCounts {
		if count > 0 {
			analysis.HasLegalLanguage = true
			break
		}
	}

	return analysis
}

func hasMainContent(doc *goquery.Document) bool {
	if doc.Find("main, article").Length() > 0 {
		return true
	}
	found := false
	doc.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class := strings.ToLower(s.AttrOr("class", ""))
		if strings.Contains(class, "content") || strings.Contains(class, "main") {
			found = true
			return false
		}
		return true
	})
	return found
}

func findMatches(text string, patterns []*regexp.Regexp) []string {
	var out []string
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) > 1 {
				out = append(out, strings.TrimSpace(m[1]))
			}
		}
	}
	return out
}

func detectCharset(doc *goquery.Document, contentType string) string {
	if charset := doc.Find("meta[charset]").First().AttrOr("charset", ""); charset != "" {
		return charset
	}
	if content := doc.Find(`meta[http-equiv]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.EqualFold(s.AttrOr("http-equiv", ""), "content-type")
	}).First().AttrOr("content", ""); content != "" {
		if cs := charsetFrom(content); cs != "" {
			return cs
		}
	}
	return charsetFrom(contentType)
}

func charsetFrom(contentType string) string {
	lower := strings.ToLower(contentType)
	idx := strings.Index(lower, "charset=")
	if idx < 0 {
		return ""
	}
	cs := contentType[idx+len("charset="):]
	if semi := strings.Index(cs, ";"); semi >= 0 {
		cs = cs[:semi]
	}
	return strings.TrimSpace(cs)
}

func hasComments(doc *goquery.Document) bool {
	for _, root := range doc.Nodes {
		if nodeHasComment(root) {
			return true
		}
	}
	return false
}

func nodeHasComment(n *html.Node) bool {
	if n.Type == html.CommentNode {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if nodeHasComment(c) {
			return true
		}
	}
	return false
}

func previewOf(text string) string {
	runes := []rune(text)
	if len(runes) <= textPreviewLimit {
		return text
	}
	return string(runes[:textPreviewLimit]) + "..."
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

package detector

import "github.com/raysh454/vigil/internal/model"

// importantHeaders are the response headers worth diffing. Everything
// else (dates, request IDs, load balancer noise) churns constantly.
var importantHeaders = []string{"last-modified", "etag", "content-type", "content-length", "cache-control"}

// ogFields are the OpenGraph properties compared between snapshots.
var ogFields = []string{"title", "description", "image", "url"}

// PolicyCategories are the keyword categories tracked for policy pages.
var PolicyCategories = []string{"privacy", "terms", "liability", "termination", "rights", "governance"}

// Differ compares two snapshots of the same logical URL field by field.
// It is pure: no store access, no side effects, deterministic output
// order. Absent fields compare as their zero value, so well-formed but
// incomplete snapshots never cause a failure.
type Differ struct {
	thresholds Thresholds
}

// NewDiffer creates a Differ with the given thresholds.
func NewDiffer(t Thresholds) *Differ {
	return &Differ{thresholds: t}
}

// CompareHTTP diffs the HTTP-level fields: status, final URL, content
// length and the important headers.
func (d *Differ) CompareHTTP(current, previous *model.URLMetadata) []model.ChangeRecord {
	var changes []model.ChangeRecord

	if current.StatusCode != previous.StatusCode {
		severity := model.SeverityMedium
		if current.StatusCode >= 400 {
			severity = model.SeverityHigh
		}
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeStatus,
			Source:     model.SourceHTTPMetadata,
			Details: map[string]any{
				"old_status": previous.StatusCode,
				"new_status": current.StatusCode,
			},
			Severity: severity,
		})
	}

	if current.FinalURL != previous.FinalURL {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeRedirect,
			Source:     model.SourceHTTPMetadata,
			Details: map[string]any{
				"old_url": previous.FinalURL,
				"new_url": current.FinalURL,
			},
			Severity: model.SeverityMedium,
		})
	}

	if delta := abs(current.ContentLength - previous.ContentLength); delta > d.thresholds.ContentSize {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeContentSize,
			Source:     model.SourceHTTPMetadata,
			Details: map[string]any{
				"old_size":       previous.ContentLength,
				"new_size":       current.ContentLength,
				"change_percent": percentChange(delta, previous.ContentLength),
			},
			Severity: model.SeverityMedium,
		})
	}

	changes = append(changes, d.compareHeaders(current.Headers, previous.Headers)...)

	return changes
}

func (d *Differ) compareHeaders(current, previous map[string]string) []model.ChangeRecord {
	var changes []model.ChangeRecord

	currentNorm := model.NormalizeHeaderMap(current)
	previousNorm := model.NormalizeHeaderMap(previous)

	for _, header := range importantHeaders {
		curVal := currentNorm[header]
		prevVal := previousNorm[header]
		if curVal == prevVal {
			continue
		}
		severity := model.SeverityMedium
		if header == "last-modified" {
			severity = model.SeverityLow
		}
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeHeader,
			Source:     model.SourceHTTPMetadata,
			Details: map[string]any{
				"header":    header,
				"old_value": prevVal,
				"new_value": curVal,
			},
			Severity: severity,
		})
	}

	return changes
}

// CompareHTML diffs the document-level fields: title, description,
// canonical URL, OpenGraph properties and the general content analysis.
func (d *Differ) CompareHTML(current, previous *model.HTMLMetadata) []model.ChangeRecord {
	var changes []model.ChangeRecord

	if current.Title != previous.Title {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeTitle,
			Source:     model.SourceHTMLMetadata,
			Details: map[string]any{
				"old_title": previous.Title,
				"new_title": current.Title,
			},
			Severity: model.SeverityHigh,
		})
	}

	if current.MetaDescription != previous.MetaDescription {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeMetaDescription,
			Source:     model.SourceHTMLMetadata,
			Details: map[string]any{
				"old_description": previous.MetaDescription,
				"new_description": current.MetaDescription,
			},
			Severity: model.SeverityMedium,
		})
	}

	if current.CanonicalURL != previous.CanonicalURL {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeCanonicalURL,
			Source:     model.SourceHTMLMetadata,
			Details: map[string]any{
				"old_canonical": previous.CanonicalURL,
				"new_canonical": current.CanonicalURL,
			},
			Severity: model.SeverityMedium,
		})
	}

	for _, field := range ogFields {
		curVal := current.OGMetadata[field]
		prevVal := previous.OGMetadata[field]
		if curVal == prevVal {
			continue
		}
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeOpenGraph,
			Source:     model.SourceHTMLMetadata,
			Details: map[string]any{
				"field":     field,
				"old_value": prevVal,
				"new_value": curVal,
			},
			Severity: model.SeverityMedium,
		})
	}

	changes = append(changes, d.compareContent(&current.ContentAnalysis, &previous.ContentAnalysis)...)

	return changes
}

func (d *Differ) compareContent(current, previous *model.ContentAnalysis) []model.ChangeRecord {
	var changes []model.ChangeRecord

	if delta := abs(current.WordCount - previous.WordCount); delta > d.thresholds.WordCount {
		severity := model.SeverityLow
		if delta > d.thresholds.WordCountMajor {
			severity = model.SeverityMedium
		}
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeWordCount,
			Source:     model.SourceContentAnalysis,
			Details: map[string]any{
				"old_count":      previous.WordCount,
				"new_count":      current.WordCount,
				"change_percent": percentChange(delta, previous.WordCount),
			},
			Severity: severity,
		})
	}

	if !equalIntMaps(current.HeadingStructure, previous.HeadingStructure) {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeHeadingStructure,
			Source:     model.SourceContentAnalysis,
			Details: map[string]any{
				"old_structure": previous.HeadingStructure,
				"new_structure": current.HeadingStructure,
			},
			Severity: model.SeverityLow,
		})
	}

	return changes
}

// ComparePolicy diffs the policy-relevant signals: declared version,
// keyword category counts, version indicators and the legal-language
// flag. Every record it emits is policy-flagged.
func (d *Differ) ComparePolicy(current, previous *model.HTMLMetadata) []model.ChangeRecord {
	var changes []model.ChangeRecord

	curVersion := current.OtherMetadata["version"]
	prevVersion := previous.OtherMetadata["version"]
	if curVersion != prevVersion {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeVersion,
			Source:     model.SourcePolicyAnalysis,
			Details: map[string]any{
				"old_version": prevVersion,
				"new_version": curVersion,
			},
			Severity:    model.SeverityHigh,
			PolicyAlert: true,
		})
	}

	for _, category := range PolicyCategories {
		curCount := current.ContentAnalysis.KeywordCounts[category]
		prevCount := previous.ContentAnalysis.KeywordCounts[category]
		if abs(curCount-prevCount) <= d.thresholds.PolicyKeywordCount {
			continue
		}
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangePolicyKeyword,
			Source:     model.SourcePolicyAnalysis,
			Details: map[string]any{
				"keyword":   category,
				"old_count": prevCount,
				"new_count": curCount,
			},
			Severity:    model.SeverityMedium,
			PolicyAlert: true,
		})
	}

	if !equalStringSets(current.ContentAnalysis.VersionIndicators, previous.ContentAnalysis.VersionIndicators) {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeVersionIndicator,
			Source:     model.SourcePolicyAnalysis,
			Details: map[string]any{
				"old_versions": previous.ContentAnalysis.VersionIndicators,
				"new_versions": current.ContentAnalysis.VersionIndicators,
			},
			Severity:    model.SeverityHigh,
			PolicyAlert: true,
		})
	}

	if current.ContentAnalysis.HasLegalLanguage != previous.ContentAnalysis.HasLegalLanguage {
		changes = append(changes, model.ChangeRecord{
			ChangeType: model.ChangeLegalLanguage,
			Source:     model.SourcePolicyAnalysis,
			Details: map[string]any{
				"old_state": previous.ContentAnalysis.HasLegalLanguage,
				"new_state": current.ContentAnalysis.HasLegalLanguage,
			},
			Severity:    model.SeverityMedium,
			PolicyAlert: true,
		})
	}

	return changes
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// percentChange computes delta as a percentage of base, flooring the
// denominator at 1 to avoid dividing by zero.
func percentChange(delta, base int) float64 {
	if base < 1 {
		base = 1
	}
	return float64(delta) / float64(base) * 100
}

func equalIntMaps(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// equalStringSets compares two slices as sets, ignoring order and
// duplicates.
func equalStringSets(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, v := range a {
		as[v] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, v := range b {
		bs[v] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for v := range as {
		if _, ok := bs[v]; !ok {
			return false
		}
	}
	return true
}

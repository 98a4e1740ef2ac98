package detector

import (
	"time"

	"github.com/raysh454/vigil/internal/model"
)

// Word-count bounds for the stealth rules. Rule A needs a substantial
// edit; Rule B needs a near-static page.
const (
	stealthContentDelta = 100
	stealthStaticDelta  = 50
)

// DetectStealth correlates weak signals into alerts for changes the
// page's own version metadata does not reflect.
//
// Rule A: the visible text changed by more than 100 words while the set
// of version indicators stayed identical, a large edit with no version
// bump.
//
// Rule B: the Last-Modified header changed while the text moved by
// fewer than 50 words, a metadata-only or cosmetic edit worth a look.
//
// Both rules need HTML metadata on both sides; without it no alerts are
// produced.
func DetectStealth(current, previous *model.URLMetadata) []model.StealthAlert {
	var alerts []model.StealthAlert

	if current == nil || previous == nil || current.HTMLMetadata == nil || previous.HTMLMetadata == nil {
		return alerts
	}

	curContent := current.HTMLMetadata.ContentAnalysis
	prevContent := previous.HTMLMetadata.ContentAnalysis
	wordDelta := curContent.WordCount - prevContent.WordCount

	if abs(wordDelta) > stealthContentDelta &&
		equalStringSets(curContent.VersionIndicators, prevContent.VersionIndicators) {
		alerts = append(alerts, model.StealthAlert{
			AlertType: model.StealthContentChange,
			Severity:  model.StealthSeverityHigh,
			Message:   "Significant content changes detected without version update",
			Details: map[string]any{
				"word_count_change": wordDelta,
				"current_versions":  curContent.VersionIndicators,
				"previous_versions": prevContent.VersionIndicators,
			},
			URL:       current.URL,
			Timestamp: time.Now(),
		})
	}

	curLastModified := current.Header("last-modified")
	prevLastModified := previous.Header("last-modified")

	if curLastModified != prevLastModified && abs(wordDelta) < stealthStaticDelta {
		alerts = append(alerts, model.StealthAlert{
			AlertType: model.StealthLastModifiedUpdate,
			Severity:  model.StealthSeverityMedium,
			Message:   "Last-Modified header changed with minimal content changes",
			Details: map[string]any{
				"last_modified_change": prevLastModified + " -> " + curLastModified,
				"word_count_change":    wordDelta,
			},
			URL:       current.URL,
			Timestamp: time.Now(),
		})
	}

	return alerts
}

package model

import "time"

// Change severities, lowest to highest.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Change types emitted by the detector.
const (
	ChangeFirstDetection   = "first_detection"
	ChangeStatus           = "status_change"
	ChangeRedirect         = "redirect_change"
	ChangeContentSize      = "content_size_change"
	ChangeHeader           = "header_change"
	ChangeTitle            = "title_change"
	ChangeMetaDescription  = "meta_description_change"
	ChangeCanonicalURL     = "canonical_url_change"
	ChangeOpenGraph        = "opengraph_change"
	ChangeWordCount        = "word_count_change"
	ChangeHeadingStructure = "heading_structure_change"
	ChangeVersion          = "version_change"
	ChangePolicyKeyword    = "policy_keyword_change"
	ChangeVersionIndicator = "version_indicator_change"
	ChangeLegalLanguage    = "legal_language_change"
)

// Subsystems a change can originate from.
const (
	SourceDirectMetadata  = "direct_metadata"
	SourceHTTPMetadata    = "http_metadata"
	SourceHTMLMetadata    = "html_metadata"
	SourceContentAnalysis = "content_analysis"
	SourcePolicyAnalysis  = "policy_analysis"
)

// Stealth alert types.
const (
	StealthContentChange      = "STEALTH_CONTENT_CHANGE"
	StealthLastModifiedUpdate = "STEALTH_LAST_MODIFIED_UPDATE"

	StealthSeverityHigh   = "HIGH"
	StealthSeverityMedium = "MEDIUM"
)

// ChangeRecord is one detected difference between two snapshots of the
// same logical URL.
type ChangeRecord struct {
	// ChangeType is one of the Change* constants.
	ChangeType string `json:"change_type"`

	// Source names the subsystem that detected the change.
	Source string `json:"source"`

	// Details carries old/new values and rule-specific context.
	Details map[string]any `json:"details"`

	// Severity is one of the Severity* constants.
	Severity string `json:"severity"`

	// PolicyAlert marks changes relevant to policy-content monitoring.
	PolicyAlert bool `json:"policy_alert"`
}

// StealthAlert flags a change that the page's own version metadata
// does not reflect, the quiet policy edit case.
type StealthAlert struct {
	AlertType string         `json:"alert_type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	URL       string         `json:"url"`
	Timestamp time.Time      `json:"timestamp"`
}

// DetectedChange groups everything found for one URL in one cycle. It is
// what the reporting layer consumes.
type DetectedChange struct {
	URL           string         `json:"url"`
	Changes       []ChangeRecord `json:"changes"`
	StealthAlerts []StealthAlert `json:"stealth_alerts,omitempty"`
	Metadata      *URLMetadata   `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	ChangeSource  string         `json:"change_source"`
	Priority      string         `json:"priority"`
}

// HasPolicyAlert reports whether any record in the group is
// policy-flagged.
func (d *DetectedChange) HasPolicyAlert() bool {
	for _, c := range d.Changes {
		if c.PolicyAlert {
			return true
		}
	}
	return false
}

// MaxSeverity returns the highest severity across the grouped records,
// or SeverityLow for an empty group.
func (d *DetectedChange) MaxSeverity() string {
	rank := map[string]int{SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2}
	max := SeverityLow
	for _, c := range d.Changes {
		if rank[c.Severity] > rank[max] {
			max = c.Severity
		}
	}
	return max
}
